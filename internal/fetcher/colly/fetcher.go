// Package collyfetcher implements tender.Fetcher using gocolly with a capped
// retry policy for transient network failures.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/metrics"
	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

const (
	defaultMaxRetries   = 3
	defaultBackoff      = 100 * time.Millisecond
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// ErrBodyTooLarge is returned when a response body exceeds Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Config controls collector and retry behavior.
//   - MaxRetries: retries after the first attempt (default 3, negative disables retries).
//   - Backoff: fixed sleep between attempts (default 100ms).
//   - MaxBodyBytes: response size cap (default 10MiB, negative disables the cap).
//     Larger bodies fail with ErrBodyTooLarge instead of being truncated.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	Backoff      time.Duration
	MaxBodyBytes int
}

// Fetcher implements tender.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	retry         *FixedRetryPolicy
	limiter       tender.Limiter
	logger        *zap.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter tender.Limiter, logger *zap.Logger) *Fetcher {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = 0
	if cfg.MaxBodyBytes > 0 {
		// One extra byte lets fetchOnce tell an oversized body from one at the cap.
		c.MaxBodySize = cfg.MaxBodyBytes + 1
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		retry:         NewFixedRetryPolicy(cfg.MaxRetries, cfg.Backoff),
		limiter:       limiter,
		logger:        logger,
		sleep:         sleepContext,
	}
}

// Fetch performs the request, retrying transient network failures up to
// MaxRetries times with a fixed backoff. The limiter paces the first attempt
// only; retries wait out the backoff alone. Non-2xx responses are returned
// as-is.
func (f *Fetcher) Fetch(ctx context.Context, request tender.FetchRequest) (tender.FetchResponse, error) {
	method := strings.ToUpper(request.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodHead, http.MethodDelete:
	default:
		return tender.FetchResponse{}, fmt.Errorf("unknown HTTP method: %s", request.Method)
	}
	request.Method = method

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return tender.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.ObserveFetch("failed")
			return tender.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
		resp, err := f.fetchOnce(ctx, request)
		if err == nil {
			metrics.ObserveFetch("ok")
			resp.Attempts = attempt + 1
			return resp, nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			metrics.ObserveFetch("failed")
			return tender.FetchResponse{}, err
		}
		if !f.retry.ShouldRetry(err, attempt) {
			metrics.ObserveFetch("exhausted")
			return tender.FetchResponse{}, fmt.Errorf("fetch %s: retries exhausted: %w", request.URL, err)
		}
		metrics.ObserveFetch("transient")
		f.logger.Warn("transient fetch failure",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if err := f.sleep(ctx, f.retry.Backoff(attempt)); err != nil {
			return tender.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, request tender.FetchRequest) (tender.FetchResponse, error) {
	var (
		result   tender.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, start, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request, &fetchErr); err != nil {
		return tender.FetchResponse{}, err
	}
	if f.cfg.MaxBodyBytes > 0 && len(result.Body) > f.cfg.MaxBodyBytes {
		return tender.FetchResponse{}, fmt.Errorf("fetch %s: %w (%d bytes)", request.URL, ErrBodyTooLarge, f.cfg.MaxBodyBytes)
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *tender.FetchResponse,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = tender.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	request tender.FetchRequest,
	fetchErr *error,
) error {
	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}
	hdr := request.Headers.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	if len(request.Body) > 0 && hdr.Get("Content-Type") == "" {
		hdr.Set("Content-Type", "application/json")
	}

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(request.Method, request.URL, body, nil, hdr)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// IsTransient reports whether err is a connectivity or timeout failure worth
// retrying. Context cancellation never is.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
