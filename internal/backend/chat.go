package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"

	"argus/internal/logging"
	"argus/internal/stream"
)

// ChatRequest is one submitted message.
type ChatRequest struct {
	Message string
	// FilePath is the server-issued attachment handle; empty sends no field.
	FilePath  string
	RequestID string
}

// Stream is a streamed plain-text response body read chunk by chunk.
type Stream struct {
	RequestID string
	Status    int

	ctx     context.Context
	body    io.ReadCloser
	buf     []byte
	lastErr error
	once    sync.Once
}

func newStream(resp *http.Response, requestID string) *Stream {
	return &Stream{
		RequestID: requestID,
		Status:    resp.StatusCode,
		ctx:       resp.Request.Context(),
		body:      resp.Body,
		buf:       make([]byte, chunkSize),
	}
}

// Next returns the next chunk as it arrived on the wire. It returns io.EOF
// once the body is exhausted and a *ReadError on transport failure. After
// the request context is cancelled it returns an error wrapping
// context.Canceled.
func (s *Stream) Next() ([]byte, error) {
	if s.lastErr != nil {
		return nil, s.lastErr
	}
	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			if err != nil {
				s.lastErr = s.classify(err)
			}
			return chunk, nil
		}
		if err != nil {
			s.lastErr = s.classify(err)
			return nil, s.lastErr
		}
	}
}

func (s *Stream) classify(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, context.Canceled), errors.Is(s.ctx.Err(), context.Canceled):
		return fmt.Errorf("stream %s: %w", s.RequestID, context.Canceled)
	default:
		return &ReadError{Err: err}
	}
}

// Close releases the body. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}

// Chat posts a message and returns the streamed reply. A 429 answer is
// returned as *RateLimitError built from the first chunk of its body; other
// non-2xx answers are *StatusError. The caller owns the returned Stream and
// cancels it through ctx.
func (c *Client) Chat(ctx context.Context, cr ChatRequest) (*Stream, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("message", cr.Message); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if cr.FilePath != "" {
		if err := mw.WriteField("file_path", cr.FilePath); err != nil {
			return nil, fmt.Errorf("failed to encode file_path: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat", &body, cr.RequestID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	requestID := req.Header.Get("X-Request-ID")

	log := logging.WithRequestID(logging.CategoryAPI, requestID).WithField("endpoint", "/chat")
	log.Debug("POST /chat message_len=%d attachment=%v", len(cr.Message), cr.FilePath != "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if IsCanceled(err) {
			return nil, fmt.Errorf("chat: %w", context.Canceled)
		}
		log.Warn("request failed: %v", err)
		return nil, fmt.Errorf("chat: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		s := newStream(resp, requestID)
		defer s.Close()
		first, _ := s.Next()
		msg := stream.StripErrorPrefix(string(first))
		if msg == "" {
			msg = http.StatusText(http.StatusTooManyRequests)
		}
		log.Warn("rate limited: %s", msg)
		return nil, &RateLimitError{Message: msg}

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		defer resp.Body.Close()
		err := checkStatus(resp)
		log.Warn("rejected: %v", err)
		return nil, fmt.Errorf("chat: %w", err)
	}

	log.Debug("streaming reply status=%d", resp.StatusCode)
	return newStream(resp, requestID), nil
}

// Simulation starts the streamed simulation log.
func (c *Client) Simulation(ctx context.Context) (*Stream, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/run-simulation", nil, "")
	if err != nil {
		return nil, err
	}
	requestID := req.Header.Get("X-Request-ID")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("simulation: %w", err)
	}
	logging.Metrics("simulation stream started req=%s", requestID)
	return newStream(resp, requestID), nil
}
