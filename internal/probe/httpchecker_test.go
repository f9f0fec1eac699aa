package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/pagewatch/internal/domain"
)

type nxResolver struct{}

func (nxResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}
func (nxResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	return "", &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}
func (nxResolver) LookupNS(ctx context.Context, name string) ([]*net.NS, error) {
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func newTestChecker() *HealthChecker {
	h := NewHealthChecker(2*time.Second, time.Second)
	h.Resolver = nxResolver{} // only consulted for non-IP hosts
	return h
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)
	return s
}

func TestCheckHealth_DNSFailureSkipsRequest(t *testing.T) {
	chk := newTestChecker()
	out := chk.CheckHealth(context.Background(), "https://unreachable.example.test/")
	if out.Status != domain.HealthDown || out.Error != "DNS Resolution Failed" {
		t.Fatalf("want Down/DNS Resolution Failed, got %+v", out)
	}
	if out.Port != "unknown" {
		t.Fatalf("want unknown port, got %q", out.Port)
	}
}

func TestCheckHealth_ClassificationTable(t *testing.T) {
	body500 := strings.Repeat("a", 500)
	cases := []struct {
		name    string
		handler http.HandlerFunc
		status  domain.HealthStatus
		reason  string
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(body500))
		}, domain.HealthDown, "Server Error (503)"},
		{"client error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, domain.HealthDown, "Client Error (404)"},
		{"redirect without location", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusMovedPermanently)
		}, domain.HealthUp, "Redirect (301)"},
		{"minimal content", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 50)))
		}, domain.HealthWarning, "Minimal Content"},
		{"normal page", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body500))
		}, domain.HealthUp, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := serve(t, c.handler)
			out := newTestChecker().CheckHealth(context.Background(), s.URL)
			if out.Status != c.status || out.Error != c.reason {
				t.Fatalf("want %s/%q, got %+v", c.status, c.reason, out)
			}
		})
	}
}

func TestCheckHealth_UpReportsFinalPort(t *testing.T) {
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("ok ", 100)))
	})
	u, _ := url.Parse(s.URL)

	out := newTestChecker().CheckHealth(context.Background(), s.URL)
	if out.Status != domain.HealthUp {
		t.Fatalf("want Up, got %+v", out)
	}
	if out.Port != u.Port() {
		t.Fatalf("want port %s, got %s", u.Port(), out.Port)
	}
}

func TestCheckHealth_SlowResponse(t *testing.T) {
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(120 * time.Millisecond)
		_, _ = w.Write([]byte(strings.Repeat("a", 500)))
	})
	chk := newTestChecker()
	chk.SlowAfter = 40 * time.Millisecond

	out := chk.CheckHealth(context.Background(), s.URL)
	if out.Status != domain.HealthSlow {
		t.Fatalf("want Slow, got %+v", out)
	}
	if !strings.HasPrefix(out.Error, "Response Time: ") {
		t.Fatalf("want response time reason, got %q", out.Error)
	}
}

func TestCheckHealth_TimeoutIsDown(t *testing.T) {
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	chk := newTestChecker()
	chk.Timeout = 30 * time.Millisecond

	out := chk.CheckHealth(context.Background(), s.URL)
	if out.Status != domain.HealthDown || out.Error != "Connection Timeout" {
		t.Fatalf("want Down/Connection Timeout, got %+v", out)
	}
}

func TestCheckHealth_ConnectionRefused(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	target := s.URL
	s.Close()

	out := newTestChecker().CheckHealth(context.Background(), target)
	if out.Status != domain.HealthDown || out.Error != "Connection Refused" {
		t.Fatalf("want Down/Connection Refused, got %+v", out)
	}
}

func TestCheckHealth_UntrustedCertificate(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 500)))
	}))
	defer s.Close()

	out := newTestChecker().CheckHealth(context.Background(), s.URL)
	if out.Status != domain.HealthDown || out.Error != "SSL Error" {
		t.Fatalf("want Down/SSL Error, got %+v", out)
	}
	if out.Port != "443" {
		t.Fatalf("non-Up results report the scheme default port, got %q", out.Port)
	}
}
