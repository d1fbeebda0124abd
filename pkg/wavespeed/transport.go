package wavespeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// post sends a JSON body to the given endpoint and returns the unwrapped
// response payload.
func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("POST", zap.String("endpoint", endpoint))
	return c.roundTrip(req, "message")
}

// get fetches the given endpoint and returns the unwrapped response payload.
func (c *Client) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("GET", zap.String("endpoint", endpoint))
	return c.roundTrip(req, "error")
}

// roundTrip executes the request and normalizes transport and application
// failures into the error taxonomy. errKey names the body field that carries
// the error text on non-200 responses; the submission surface uses "message",
// the prediction surface uses "error".
func (c *Client) roundTrip(req *http.Request, errKey string) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthError{}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Status: resp.StatusCode, Message: errorField(body, errKey)}
	}
	return unwrapEnvelope(body)
}

// unwrapEnvelope resolves the optional {code, message, data} wrapper. A body
// without a code field is returned as-is; an envelope with code 200 yields its
// data field.
func unwrapEnvelope(body []byte) (json.RawMessage, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return json.RawMessage(body), nil
	}
	codeRaw, ok := probe["code"]
	if !ok {
		return json.RawMessage(body), nil
	}
	var code int
	if err := json.Unmarshal(codeRaw, &code); err != nil {
		return json.RawMessage(body), nil
	}
	if code == http.StatusUnauthorized {
		return nil, &AuthError{}
	}
	if code != http.StatusOK {
		var msg string
		if raw, ok := probe["message"]; ok {
			_ = json.Unmarshal(raw, &msg)
		}
		return nil, &APIError{Code: code, Message: msg}
	}
	data, ok := probe["data"]
	if !ok || len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	return data, nil
}

// errorField extracts a string field from an error response body, returning
// "" when the body is not JSON or the field is absent.
func errorField(body []byte, key string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
