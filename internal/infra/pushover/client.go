package pushover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.pushover.net"

// Client sends operator alerts through Pushover. With no token or user key
// every Notify is a no-op.
type Client struct {
	token      string
	userKey    string
	title      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(token, userKey, title string) *Client {
	if title == "" {
		title = "Michi"
	}
	return &Client{
		token:      token,
		userKey:    userKey,
		title:      title,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the client at another API host.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Notify(ctx context.Context, message string) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", c.title)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/1/messages.json",
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pushover error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}
