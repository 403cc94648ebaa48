package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/lipvoice/voice-client/internal/errors"
)

// Envelope is the backend's response wrapper.
type Envelope struct {
	Message  string          `json:"message"`
	Status   int             `json:"status"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// GetJSON sends a GET with query and decodes the envelope metadata into result.
func (g *Gateway) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	return g.DoJSON(ctx, http.MethodGet, path, query, nil, result)
}

// PostJSON sends body as JSON and decodes the envelope metadata into result.
func (g *Gateway) PostJSON(ctx context.Context, path string, body any, result any) error {
	return g.DoJSON(ctx, http.MethodPost, path, nil, body, result)
}

// DoJSON is the shared JSON round trip. A nil result skips decoding.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "encode request body")
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.url(path, query), bodyReader)
	if err != nil {
		return errors.Wrapf(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.send(req, result)
}

// PostMultipart uploads one file field and decodes the envelope metadata into result.
func (g *Gateway) PostMultipart(ctx context.Context, path, field, filename string, content io.Reader, fields map[string]string, result any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return errors.Wrapf(err, "write field %s", k)
		}
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return errors.Wrapf(err, "create form file")
	}
	if _, err := io.Copy(part, content); err != nil {
		return errors.Wrapf(err, "copy upload")
	}
	if err := mw.Close(); err != nil {
		return errors.Wrapf(err, "close multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url(path, nil), &buf)
	if err != nil {
		return errors.Wrapf(err, "build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return g.send(req, result)
}

func (g *Gateway) send(req *http.Request, result any) error {
	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ReadStatusError(resp)
	}
	if result == nil {
		return nil
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrapf(err, "decode response")
	}
	if len(env.Metadata) == 0 || string(env.Metadata) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Metadata, result); err != nil {
		return errors.Wrapf(err, "decode response metadata")
	}
	return nil
}

func (g *Gateway) url(path string, query url.Values) string {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ReadStatusError turns a non-2xx response into a *StatusError, consuming its body.
func ReadStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	se := &StatusError{StatusCode: resp.StatusCode, Body: body}
	var env Envelope
	if json.Unmarshal(body, &env) == nil {
		se.Message = env.Message
	}
	return se
}
