package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/logger"
)

var (
	// ErrTokenExpired marks a rejected access token. The dialogue loop
	// surfaces a dedicated notice instead of the generic failure message.
	ErrTokenExpired = errors.New("whatsapp: access token expired")
	// ErrReengagement marks a free-form send outside the 24-hour customer
	// service window. Template messages are still allowed.
	ErrReengagement = errors.New("whatsapp: outside re-engagement window")
)

const (
	defaultGraphBase = "https://graph.facebook.com"
	templateLang     = "he"
	reengagementCode = 131047
	oauthErrorCode   = 190
)

// Client is a thin Graph API client bound to one business phone number.
type Client struct {
	token         string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

// NewClient builds a client for the given Graph API version, e.g. "v23.0".
func NewClient(token, phoneNumberID, graphVersion string) *Client {
	return &Client{
		token:         token,
		phoneNumberID: phoneNumberID,
		baseURL:       defaultGraphBase + "/" + graphVersion,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the Graph endpoint. Test hook.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// SendText delivers a free-form text message.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	return c.postMessage(ctx, payload)
}

// SendTemplate delivers a pre-approved Hebrew template by name.
func (c *Client) SendTemplate(ctx context.Context, to, name string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":     name,
			"language": map[string]any{"code": templateLang},
		},
	}
	return c.postMessage(ctx, payload)
}

func (c *Client) postMessage(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return c.classifyError(resp)
}

// graphError is the error envelope the Graph API returns.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) classifyError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var ge graphError
	_ = json.Unmarshal(raw, &ge)

	logger.Warn("whatsapp send rejected",
		"status", resp.StatusCode,
		"code", ge.Error.Code,
		"message", ge.Error.Message)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, ge.Error.Code == oauthErrorCode:
		return fmt.Errorf("%w: %s", ErrTokenExpired, ge.Error.Message)
	case ge.Error.Code == reengagementCode:
		return fmt.Errorf("%w: %s", ErrReengagement, ge.Error.Message)
	}
	return fmt.Errorf("whatsapp: send failed with status %d: %s", resp.StatusCode, ge.Error.Message)
}

// Media is a downloaded attachment.
type Media struct {
	Data     []byte
	MIMEType string
	Filename string
}

// FetchMedia resolves a media id to its download URL and retrieves the
// bytes. Two requests: the id lookup returns a short-lived URL which must be
// fetched with the same bearer token.
func (c *Client) FetchMedia(ctx context.Context, mediaID string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+mediaID, nil)
	if err != nil {
		return nil, fmt.Errorf("build media lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp)
	}

	var meta struct {
		URL      string `json:"url"`
		MIMEType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode media lookup: %w", err)
	}

	dl, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media download: %w", err)
	}
	dl.Header.Set("Authorization", "Bearer "+c.token)

	dlResp, err := c.httpClient.Do(dl)
	if err != nil {
		return nil, fmt.Errorf("media download: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whatsapp: media download failed with status %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	return &Media{
		Data:     data,
		MIMEType: meta.MIMEType,
		Filename: "media_" + mediaID + ExtensionFor(meta.MIMEType),
	}, nil
}
