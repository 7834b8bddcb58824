package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"michi-relay/internal/domain"
)

const (
	uploadFileName   = "received.wav"
	responseFileName = "conversation.mp3"
)

type ctxKey struct{}

type commandResponse struct {
	Status        string `json:"status"`
	Transcription string `json:"transcription"`
	Category      string `json:"category"`
	Action        string `json:"action,omitempty"`
	AudioURL      string `json:"audio_url,omitempty"`
	Error         string `json:"error,omitempty"`
}

type wakeResponse struct {
	WakewordDetected bool   `json:"wakeword_detected"`
	Transcription    string `json:"transcription"`
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		logger := s.logger.With("request_id", id)
		ctx := context.WithValue(r.Context(), ctxKey{}, logger)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logger.Debug("request handled", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return fallback
}

func (s *Server) handleDetectWake(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), s.logger)

	data, ok := readBody(w, r, s.cfg.MaxAudioBytes, "no audio data received")
	if !ok {
		return
	}

	result, err := s.relay.DetectWake(r.Context(), data)
	if err != nil {
		logger.Error("wake detection failed", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, wakeResponse{
		WakewordDetected: result.Detected,
		Transcription:    result.Transcript,
	})
}

func (s *Server) handleProcessInput(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), s.logger)

	data, ok := readBody(w, r, s.cfg.MaxAudioBytes, "no audio data received")
	if !ok {
		return
	}
	s.saveUpload(logger, data)

	outcome, err := s.relay.Process(r.Context(), data)
	s.writeOutcome(w, r, logger, outcome, err)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), s.logger)

	data, ok := readBody(w, r, s.cfg.MaxTextBytes, "empty text")
	if !ok {
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		writeError(w, http.StatusBadRequest, "empty text")
		return
	}

	outcome, err := s.relay.ProcessText(r.Context(), text)
	s.writeOutcome(w, r, logger, outcome, err)
}

func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, logger *slog.Logger, outcome domain.Outcome, err error) {
	if err != nil {
		logger.Error("processing command failed", "transcript", outcome.Transcript, "category", outcome.Category, "error", err)
		if !errors.Is(err, domain.ErrChannelUnavailable) {
			writeError(w, statusFor(err), err.Error())
			return
		}
		// The command was understood but never reached the robot.
		writeJSON(w, http.StatusServiceUnavailable, commandResponse{
			Status:        "error",
			Transcription: outcome.Transcript,
			Category:      string(outcome.Category),
			Error:         err.Error(),
		})
		return
	}

	logger.Info("command sent", "transcript", outcome.Transcript, "category", outcome.Category)
	resp := commandResponse{
		Status:        "success",
		Transcription: outcome.Transcript,
		Category:      string(outcome.Category),
		Action:        outcome.Category.Action(),
	}
	if outcome.Category == domain.CategoryTalk {
		resp.AudioURL = s.audioURL(r)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) audioURL(r *http.Request) string {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	if base == "" {
		base = "http://" + r.Host
	}
	return base + "/audio_response"
}

// saveUpload keeps the latest clip on disk for inspection; failures only log.
func (s *Server) saveUpload(logger *slog.Logger, data []byte) {
	if s.cfg.UploadDir == "" {
		return
	}

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		logger.Warn("creating upload dir", "error", err)
		return
	}
	path := filepath.Join(s.cfg.UploadDir, uploadFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("saving upload", "path", path, "error", err)
	}
}

func (s *Server) handleAudioResponse(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AudioDir == "" {
		http.Error(w, "Audio response not found", http.StatusNotFound)
		return
	}

	path := filepath.Join(s.cfg.AudioDir, responseFileName)
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "Audio response not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "Audio response not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, responseFileName, info.ModTime(), f)
}

func (s *Server) handleTalkState(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("wait"); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			writeError(w, http.StatusBadRequest, "invalid wait duration")
			return
		}
		if wait > s.cfg.MaxWait {
			wait = s.cfg.MaxWait
		}

		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		// A timeout is not an error here; the current flag is reported.
		_ = s.talk.Wait(ctx)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ready": s.talk.Ready()})
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	transcripts, err := s.relay.Transcripts(r.Context(), limit)
	if err != nil {
		loggerFrom(r.Context(), s.logger).Error("listing transcripts", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if transcripts == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, transcripts)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"device_connected": s.device.Connected(),
	})
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64, emptyMsg string) ([]byte, bool) {
	defer r.Body.Close()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, emptyMsg)
		return nil, false
	}
	return data, true
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrChannelUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
