// Package twilio is the WhatsApp message channel: it parses inbound
// webhook payloads, downloads voice-note media, and sends replies
// through the Twilio Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com"

type Client struct {
	accountSID string
	authToken  string
	fromNumber string // e.g. "whatsapp:+14155238886"
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

func NewClient(accountSID, authToken, fromNumber string, logger *slog.Logger) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(baseURL string) {
	c.baseURL = baseURL
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendReply sends an outbound WhatsApp text. Failures are returned,
// never retried.
func (c *Client) SendReply(ctx context.Context, to, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	form := url.Values{}
	form.Set("From", c.fromNumber)
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("twilio error %d: %s", errResp.Code, errResp.Message)
		}
		return fmt.Errorf("twilio error %d: %s", resp.StatusCode, string(respBody))
	}

	var sent struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(respBody, &sent); err == nil {
		c.logger.Info("reply sent", "sid", sent.SID, "to", to)
	}
	return nil
}

// DownloadMedia fetches a media attachment. Twilio media URLs require
// account credentials.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	return data, nil
}
