package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/engine"
	apimw "github.com/hamed0406/pagewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pagewatch/internal/monitor"
)

type Server struct {
	Logger *zap.Logger
	Engine *engine.Engine
}

func NewServer(l *zap.Logger, e *engine.Engine) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Engine: e}
}

// Router wires the API. Preview routes fetch arbitrary pages on demand and
// are rate-limited per client.
func (s *Server) Router(allowedOrigins []string, previewRPM, previewBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: originsOrAll(allowedOrigins),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/sites", s.handleListSites)
		r.Put("/sites", s.handleUpsertSite)
		r.Delete("/sites", s.handleRemoveSite)

		r.Post("/monitor/start", s.handleStart)
		r.Post("/monitor/stop", s.handleStop)
		r.Get("/monitor/sessions", s.handleSessions)

		r.Get("/status", s.handleStatus)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(previewRPM, previewBurst))
			r.Get("/preview/elements", s.handlePreviewElements)
			r.Post("/preview/filtered", s.handlePreviewFiltered)
		})
	})

	return r
}

func originsOrAll(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// ---- sites ----

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Engine.ListSites(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleUpsertSite(w http.ResponseWriter, r *http.Request) {
	var site domain.MonitoredSite
	if err := decode(w, r, &site); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	if !isValidHTTPURL(site.URL) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid url", Field: "url"})
		return
	}
	site.URL = normalizeHTTPURL(site.URL)

	stored, err := s.Engine.UpsertSite(r.Context(), site)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Logger.Info("site_upserted",
		zap.String("url", stored.URL),
		zap.String("danger_level", string(stored.DangerLevel)),
		zap.Ints("excluded", stored.ExcludedElements),
	)
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "url query parameter required", Field: "url"})
		return
	}
	if err := s.Engine.RemoveSite(r.Context(), u); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- monitoring ----

type startPayload struct {
	URL             string `json:"url"`
	IntervalSeconds int    `json:"interval_seconds"`
	DurationMinutes int    `json:"duration_minutes"`
}

type sessionView struct {
	ID              string              `json:"id"`
	URL             string              `json:"url"`
	Dir             string              `json:"dir"`
	State           domain.SessionState `json:"state"`
	IntervalSeconds float64             `json:"interval_seconds"`
	DurationMinutes float64             `json:"duration_minutes"`
	Iteration       int                 `json:"iteration"`
	StartedAt       time.Time           `json:"started_at"`
}

func viewOf(in domain.SessionInfo) sessionView {
	return sessionView{
		ID:              in.ID,
		URL:             in.URL,
		Dir:             in.Dir,
		State:           in.State,
		IntervalSeconds: in.Interval.Seconds(),
		DurationMinutes: in.Duration.Minutes(),
		Iteration:       in.Iteration,
		StartedAt:       in.StartedAt,
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var p startPayload
	if err := decode(w, r, &p); err != nil || p.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	interval, err := scaled(p.IntervalSeconds, time.Second, "interval")
	if err != nil {
		s.writeError(w, err)
		return
	}
	duration, err := scaled(p.DurationMinutes, time.Minute, "duration")
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.Engine.StartMonitoring(r.Context(), p.URL, monitor.Options{
		Interval: interval,
		Duration: duration,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(info))
}

// scaled converts n units to a Duration, rejecting values that would
// overflow int64 nanoseconds.
func scaled(n int, unit time.Duration, field string) (time.Duration, error) {
	limit := int64(math.MaxInt64 / int64(unit))
	if int64(n) > limit || int64(n) < -limit {
		return 0, &domain.ConfigError{Field: field, Reason: fmt.Sprintf("%d is out of range", n)}
	}
	return time.Duration(n) * unit, nil
}

type urlPayload struct {
	URL string `json:"url"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var p urlPayload
	if err := decode(w, r, &p); err != nil || p.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": p.URL, "stopped": s.Engine.StopMonitoring(p.URL)})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.Engine.Sessions()
	out := make([]sessionView, 0, len(infos))
	for _, in := range infos {
		out = append(out, viewOf(in))
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- status / health ----

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if u := r.URL.Query().Get("url"); u != "" {
		sum, err := s.Engine.Describe(r.Context(), u)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
		return
	}
	all, err := s.Engine.DescribeAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	res, err := s.Engine.CheckHealth(r.Context(), u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- preview ----

func (s *Server) handlePreviewElements(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	els, err := s.Engine.PreviewElements(r.Context(), u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, els)
}

type filteredPayload struct {
	URL      string `json:"url"`
	Excluded []int  `json:"excluded"`
}

func (s *Server) handlePreviewFiltered(w http.ResponseWriter, r *http.Request) {
	var p filteredPayload
	if err := decode(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	doc, err := s.Engine.FetchFiltered(r.Context(), p.URL, p.Excluded)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": p.URL, "excluded": domain.NormalizeIndices(p.Excluded), "html": doc})
}

// ---- plumbing ----

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps engine errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ce *domain.ConfigError
	var ne *domain.NetworkError
	var se *domain.StorageError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ce.Error(), Field: ce.Field})
	case engine.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &ne):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: ne.Error(), Kind: string(ne.Kind)})
	case errors.Is(err, monitor.ErrShuttingDown):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case errors.As(err, &se):
		s.Logger.Error("storage_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	default:
		s.Logger.Error("internal_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}

// normalizeHTTPURL lowercases scheme and host, drops the default port and a
// bare "/" path.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u.Host = host
	if u.Path == "/" && u.RawQuery == "" && u.Fragment == "" {
		u.Path = ""
	}
	return u.String()
}
