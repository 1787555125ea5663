package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://gmail.googleapis.com"
	defaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a failure response we keep for
	// error messages.
	maxErrorBody = 512
)

// DraftError reports a non-success response from the drafts endpoint.
type DraftError struct {
	StatusCode int
	Body       string
}

func (e *DraftError) Error() string {
	return fmt.Sprintf("gmail: draft create failed (%d): %s", e.StatusCode, e.Body)
}

// Client creates mail drafts through the Gmail API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a drafts client. Empty baseURL means the public
// Gmail endpoint; zero timeout means 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type draftRequest struct {
	Message draftMessage `json:"message"`
}

type draftMessage struct {
	Raw string `json:"raw"`
}

// CreateDraft creates an unsent draft addressed to the given lead.
// Any non-2xx response is returned as a *DraftError.
func (c *Client) CreateDraft(ctx context.Context, accessToken, to, subject, body string) error {
	payload, err := json.Marshal(draftRequest{
		Message: draftMessage{Raw: encodeMessage(to, subject, body)},
	})
	if err != nil {
		return fmt.Errorf("gmail: marshal draft request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/gmail/v1/users/me/drafts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gmail: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail: draft request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DraftError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}
	return nil
}

// encodeMessage renders an RFC 822 message and encodes it the way the
// Gmail API expects: URL-safe base64.
func encodeMessage(to, subject, body string) string {
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		to, subject, body)
	return base64.URLEncoding.EncodeToString([]byte(msg))
}
