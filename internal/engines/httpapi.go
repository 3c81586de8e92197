package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/xtractme/internal/extraction"
)

const (
	probeTimeout  = 3 * time.Second
	maxReplyBytes = 32 << 20
)

var httpClient = &http.Client{}

// probeHTTP reports an endpoint reachable when it answers any HTTP request
// with a non-5xx status.
func probeHTTP(ctx context.Context, url string) extraction.Capability {
	if url == "" {
		return extraction.Capability{Mode: extraction.ModeAPI, Reason: "no api_url configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return extraction.Capability{Mode: extraction.ModeAPI, Endpoint: url, Reason: err.Error()}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return extraction.Capability{Mode: extraction.ModeAPI, Endpoint: url, Reason: fmt.Sprintf("unreachable: %v", err)}
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return extraction.Capability{Mode: extraction.ModeAPI, Endpoint: url, Reason: fmt.Sprintf("unhealthy: %s", resp.Status)}
	}
	return extraction.Capability{Available: true, Mode: extraction.ModeAPI, Endpoint: url}
}

// postJSON sends body as JSON and returns the raw reply.
func postJSON(ctx context.Context, url, token string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(req)
}

// postImage uploads a PNG as a multipart "file" field.
func postImage(ctx context.Context, url, token string, png []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "page.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(png); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(req)
}

func getBytes(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(req)
}

func do(req *http.Request) ([]byte, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, truncate(string(body), 200))
	}
	return body, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
