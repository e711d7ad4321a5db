package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is a thin JSON client shared by the tool adapters. Adapters
// run it with zero retries so the executor owns all per-step retrying.
type HTTPClient struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

// HTTPStatusError carries the non-2xx status and a snippet of the body.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

func NewHTTPClient(timeout time.Duration, retries int, backoff time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if backoff == 0 {
		backoff = 300 * time.Millisecond
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}, retries: retries, backoff: backoff}
}

func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if payload != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			err = decodeResponse(resp, out)
			if err == nil {
				return nil
			}
			lastErr = err
			// a decode failure or client error will not improve on retry
			if se, ok := err.(*HTTPStatusError); !ok || (se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests) {
				return err
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(b)}
}

// ClassifyHTTPError maps a transport or status error to an adapter error kind.
func ClassifyHTTPError(err error) ErrorKind {
	if se, ok := err.(*HTTPStatusError); ok {
		switch {
		case se.StatusCode == http.StatusUnauthorized:
			return ErrAuth
		case se.StatusCode == http.StatusForbidden:
			// GitHub reports rate-limit exhaustion as 403
			return ErrRateLimit
		case se.StatusCode == http.StatusTooManyRequests:
			return ErrRateLimit
		case se.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case se.StatusCode >= 400 && se.StatusCode < 500:
			return ErrBadRequest
		}
	}
	return ErrNetwork
}
