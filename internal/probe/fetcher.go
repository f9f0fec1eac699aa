package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/domain"
)

const (
	DefaultAttemptTimeout = 10 * time.Second
	defaultMaxBytes       = 10 << 20
	defaultUserAgent      = "pagewatch/1.0"
)

// Fetcher downloads page content with a bounded retry policy. Each attempt
// has its own absolute timeout.
type Fetcher struct {
	Client         *http.Client
	Retry          RetryPolicy
	AttemptTimeout time.Duration
	MaxBytes       int64
	UserAgent      string
	Logger         *zap.Logger
}

func NewFetcher(logger *zap.Logger, retry RetryPolicy, attemptTimeout time.Duration) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &Fetcher{
		Client:         &http.Client{},
		Retry:          retry,
		AttemptTimeout: attemptTimeout,
		MaxBytes:       defaultMaxBytes,
		UserAgent:      defaultUserAgent,
		Logger:         logger,
	}
}

// FetchContent returns the body of target. Failures are *domain.NetworkError.
func (f *Fetcher) FetchContent(ctx context.Context, target string) (string, error) {
	var body string
	attempts, err := f.Retry.Do(ctx, func() error {
		b, err := f.fetchOnce(ctx, target)
		if err != nil {
			f.Logger.Debug("fetch_attempt_failed", zap.String("url", target), zap.Error(err))
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		var ne *domain.NetworkError
		if errors.As(err, &ne) {
			ne.Attempts = attempts
		}
		return "", err
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string) (string, error) {
	// The attempt keeps running if the caller is cancelled mid-request.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, target, nil)
	if err != nil {
		return "", &domain.NetworkError{Kind: domain.KindOther, URL: target, Err: err}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		kind, _ := classifyTransport(err)
		return "", &domain.NetworkError{Kind: kind, URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &domain.NetworkError{
			Kind: domain.KindHTTPStatus,
			Code: resp.StatusCode,
			URL:  target,
			Err:  fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		kind, _ := classifyTransport(err)
		return "", &domain.NetworkError{Kind: kind, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(b), nil
}
