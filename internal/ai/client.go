package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Client is the remote side of the proxy contract: it talks to the backend's
// /api/ai routes with a session token. There is deliberately no request
// timeout; a hung proxy call suspends only the calling task.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, sessionToken string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   sessionToken,
		http:    &http.Client{},
	}
}

func (c *Client) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ai proxy: %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

func (c *Client) Transcribe(ctx context.Context, audioBase64, mimeType string) (Transcription, error) {
	var resp struct {
		Success bool `json:"success"`
		Transcription
	}
	err := c.post(ctx, "/api/ai/transcribe", map[string]string{
		"audio_base64": audioBase64,
		"mime_type":    mimeType,
	}, &resp)
	if err != nil {
		return Transcription{}, err
	}
	if !resp.Success {
		return Transcription{}, fmt.Errorf("ai proxy: transcription failed")
	}
	return resp.Transcription, nil
}

func (c *Client) SuggestTitle(ctx context.Context, logs string) (string, string, error) {
	var resp struct {
		Success  bool   `json:"success"`
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
	}
	if err := c.post(ctx, "/api/ai/title", map[string]string{"logs": logs}, &resp); err != nil {
		return "", "", err
	}
	if !resp.Success {
		return "", "", fmt.Errorf("ai proxy: title suggestion failed")
	}
	return resp.Title, resp.Subtitle, nil
}

func (c *Client) textCall(ctx context.Context, path string, req map[string]string) (string, error) {
	var resp struct {
		Success bool   `json:"success"`
		Text    string `json:"text"`
	}
	if err := c.post(ctx, path, req, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("ai proxy: %s failed", path)
	}
	return resp.Text, nil
}

func (c *Client) Recap(ctx context.Context, logs string) (string, error) {
	return c.textCall(ctx, "/api/ai/recap", map[string]string{"logs": logs})
}

func (c *Client) Insight(ctx context.Context, transcript string) (string, error) {
	return c.textCall(ctx, "/api/ai/insight", map[string]string{"transcript": transcript})
}

func (c *Client) Persona(ctx context.Context, logs string) (string, error) {
	return c.textCall(ctx, "/api/ai/persona", map[string]string{"logs": logs})
}
