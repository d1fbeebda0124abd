package wavespeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"go.uber.org/zap"
)

const uploadPath = "/api/v2/media/upload/binary"

// Upload sends PNG-encoded image bytes to the media upload endpoint and
// returns the hosted download URL. The wire contract is a multipart form with
// a single "file" field; only the authorization header is set.
func (c *Client) Upload(ctx context.Context, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %v", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read upload data: %v", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UploadError{Status: resp.StatusCode}
	}

	url, err := parseUploadResponse(body)
	if err != nil {
		return "", err
	}
	c.logger.Info("media uploaded", zap.String("url", url))
	return url, nil
}

// UploadFile uploads a local file. The service expects PNG image data.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	return c.Upload(ctx, f)
}

// parseUploadResponse extracts data.download_url from the envelope. Unlike
// other calls, the upload surface always wraps its payload; a bare body means
// no URL was issued.
func parseUploadResponse(body []byte) (string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", &UploadError{}
	}
	codeRaw, ok := probe["code"]
	if !ok {
		return "", &UploadError{}
	}
	var code int
	if err := json.Unmarshal(codeRaw, &code); err != nil {
		return "", &UploadError{}
	}
	if code == http.StatusUnauthorized {
		return "", &AuthError{}
	}
	if code != http.StatusOK {
		var msg string
		if raw, ok := probe["message"]; ok {
			_ = json.Unmarshal(raw, &msg)
		}
		return "", &APIError{Code: code, Message: msg}
	}

	var data struct {
		DownloadURL string `json:"download_url"`
	}
	if raw, ok := probe["data"]; ok {
		_ = json.Unmarshal(raw, &data)
	}
	if data.DownloadURL == "" {
		return "", &UploadError{}
	}
	return data.DownloadURL, nil
}
