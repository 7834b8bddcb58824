//go:build portaudio

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// MicrophoneSource records one utterance per NextCommand: it starts on the
// first loud frame and stops after a second of silence or ten seconds.
type MicrophoneSource struct {
	stream     *portaudio.Stream
	frame      []int16
	sampleRate int
	logger     *slog.Logger
}

func NewMicrophoneSource(sampleRate int, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{
		sampleRate: sampleRate,
		logger:     logger,
		frame:      make([]int16, framesPerBuffer),
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, m.frame)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}

	m.stream = stream
	m.logger.Info("microphone started", "sample_rate", m.sampleRate)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
		m.stream = nil
	}
	return portaudio.Terminate()
}

func (m *MicrophoneSource) NextCommand(ctx context.Context) ([]byte, error) {
	const silenceThreshold = int16(500)

	samples := make([]int16, 0, m.sampleRate*5)
	silent := 0
	speaking := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := m.stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}

		loud := false
		for _, s := range m.frame {
			if s > silenceThreshold || s < -silenceThreshold {
				loud = true
				break
			}
		}

		if !speaking {
			if !loud {
				continue
			}
			speaking = true
			m.logger.Debug("speech detected, recording")
		}

		samples = append(samples, m.frame...)
		if loud {
			silent = 0
		} else {
			silent += len(m.frame)
		}

		if silent > m.sampleRate || len(samples) > m.sampleRate*10 {
			break
		}
	}

	return samplesToWav(samples, m.sampleRate), nil
}

// samplesToWav wraps mono 16-bit PCM in a WAV header.
func samplesToWav(samples []int16, sampleRate int) []byte {
	var buf bytes.Buffer
	dataSize := len(samples) * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
