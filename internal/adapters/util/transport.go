package util

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LoggingTransport is an http.RoundTripper that logs request and response
// bodies at debug level.
type LoggingTransport struct {
	Base http.RoundTripper
	Log  *zap.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Log == nil || !t.Log.Core().Enabled(zap.DebugLevel) {
		return base.RoundTrip(req)
	}

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	t.Log.Debug("outbound request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()))
	if len(reqBody) > 0 {
		// Avoid dumping large binary uploads
		if strings.Contains(req.Header.Get("Content-Type"), "multipart/form-data") {
			t.Log.Debug("outbound request body", zap.Int("multipart_length", len(reqBody)))
		} else {
			t.Log.Debug("outbound request body", zap.ByteString("body", reqBody))
		}
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body = io.NopCloser(bytes.NewBuffer(respBody))

	t.Log.Debug("outbound response",
		zap.Int("status", resp.StatusCode),
		zap.String("url", req.URL.String()),
		zap.Int("body_length", len(respBody)))

	return resp, nil
}

// RetryTransport retries requests that fail outright or come back 5xx, with
// exponential backoff. The request body is buffered so it can be replayed.
type RetryTransport struct {
	MaxRetries int
	Base       http.RoundTripper
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err = base.RoundTrip(req)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if attempt >= t.MaxRetries {
			return resp, err
		}
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
}
