package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hamed0406/pagewatch/internal/domain"
)

const (
	DefaultHealthTimeout = 5 * time.Second
	DefaultSlowAfter     = 3 * time.Second
	minContentChars      = 100
	maxHealthBody        = 2 << 20
)

// HealthChecker classifies a site as Up, Down, Slow or Warning from a DNS
// lookup followed by a single GET.
type HealthChecker struct {
	Client    *http.Client
	Resolver  Resolver
	Timeout   time.Duration
	SlowAfter time.Duration
}

func NewHealthChecker(timeout, slowAfter time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	if slowAfter <= 0 {
		slowAfter = DefaultSlowAfter
	}
	return &HealthChecker{
		Client:    &http.Client{},
		Resolver:  net.DefaultResolver,
		Timeout:   timeout,
		SlowAfter: slowAfter,
	}
}

func (h *HealthChecker) CheckHealth(ctx context.Context, target string) domain.HealthResult {
	res := domain.HealthResult{Port: "unknown", CheckedAt: time.Now().UTC()}

	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		res.Status = domain.HealthDown
		res.Error = "General Error: invalid url"
		return res
	}

	if dns := CheckDNS(ctx, h.Resolver, u.Hostname()); !dns.Resolves() {
		res.Status = domain.HealthDown
		res.Error = ReasonDNS
		return res
	}
	res.Port = defaultPort(u.Scheme)

	cctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, target, nil)
	if err != nil {
		res.Status = domain.HealthDown
		res.Error = reasonRequestPref + err.Error()
		return res
	}

	start := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		_, reason := classifyTransport(err)
		res.Status = domain.HealthDown
		res.Error = reason
		res.LatencyMS = msSince(start)
		return res
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	elapsed := time.Since(start)
	res.LatencyMS = float64(elapsed) / float64(time.Millisecond)
	if readErr != nil && len(body) == 0 {
		_, reason := classifyTransport(readErr)
		res.Status = domain.HealthDown
		res.Error = reason
		return res
	}

	code := resp.StatusCode
	switch {
	case elapsed > h.SlowAfter:
		res.Status = domain.HealthSlow
		res.Error = fmt.Sprintf("Response Time: %.2fs", elapsed.Seconds())
	case code >= 500:
		res.Status = domain.HealthDown
		res.Error = fmt.Sprintf("Server Error (%d)", code)
	case code >= 400:
		res.Status = domain.HealthDown
		res.Error = fmt.Sprintf("Client Error (%d)", code)
	case code >= 300:
		res.Status = domain.HealthUp
		res.Error = fmt.Sprintf("Redirect (%d)", code)
	case utf8.RuneCount([]byte(strings.TrimSpace(string(body)))) < minContentChars:
		res.Status = domain.HealthWarning
		res.Error = ReasonMinimal
	default:
		res.Status = domain.HealthUp
		res.Port = urlPort(resp.Request.URL)
	}
	return res
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
