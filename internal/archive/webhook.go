package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/champions-gambit/internal/domain"
)

// HeaderProvider supplies per-request headers such as an auth token.
type HeaderProvider func() map[string]string

// WebhookSink POSTs each finished game as JSON. 5xx answers and transport errors are
// retried with exponential backoff.
type WebhookSink struct {
	url     string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type WebhookOption func(*WebhookSink)

func WithTimeout(d time.Duration) WebhookOption {
	return func(s *WebhookSink) { s.defaultTimeout = d }
}

func WithRetry(max int) WebhookOption {
	return func(s *WebhookSink) { s.retryMax = max }
}

func WithHeaderProvider(h HeaderProvider) WebhookOption {
	return func(s *WebhookSink) { s.headers = h }
}

// WithDialer replaces the TCP dialer, mainly for in-memory listeners.
func WithDialer(dial func(addr string) (net.Conn, error)) WebhookOption {
	return func(s *WebhookSink) { s.http.Dial = dial }
}

func NewWebhookSink(url string, opts ...WebhookOption) (*WebhookSink, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("invalid webhook url %q", url)
	}
	s := &WebhookSink{
		url:            url,
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 4},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *WebhookSink) Save(ctx context.Context, rec domain.GameRecord) error {
	payload, err := json.Marshal(NewDocument(rec))
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(s.url)
	req.Header.SetContentType("application/json")
	if s.headers != nil {
		for k, v := range s.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	req.SetBody(payload)

	attempts := s.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := s.http.DoDeadline(req, resp, s.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return nil
			}
			err = fmt.Errorf("webhook status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if !shouldRetryStatus(status) {
				return err
			}
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", attempts, lastErr)
}

func (s *WebhookSink) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(s.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
