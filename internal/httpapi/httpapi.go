// Package httpapi serves cache lookups and game annotation over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/discochess/annotator"
)

// maxPGNBytes bounds the body of an annotate request.
const maxPGNBytes = 1 << 20

// Option configures the handler.
type Option interface {
	apply(*options)
}

type options struct {
	annotator *annotator.Annotator
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithAnnotator enables POST /v1/annotate.
func WithAnnotator(a *annotator.Annotator) Option {
	return optionFunc(func(o *options) {
		o.annotator = a
	})
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return optionFunc(func(o *options) {
		o.gatherer = g
	})
}

// WithLogger sets the request logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// LookupResponse is the body of GET /v1/lookup.
type LookupResponse struct {
	Fingerprint   string               `json:"fingerprint"`
	Found         bool                 `json:"found"`
	Annotation    annotator.Annotation `json:"annotation"`
	Nodes         int64                `json:"nodes,omitempty"`
	Depth         int                  `json:"depth,omitempty"`
	PrincipalLine string               `json:"pv,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	cache     *annotator.Cache
	annotator *annotator.Annotator
	logger    *zap.Logger
}

// New returns the router. cache answers lookups.
func New(cache *annotator.Cache, opts ...Option) http.Handler {
	cfg := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	h := &handler{
		cache:     cache,
		annotator: cfg.annotator,
		logger:    cfg.logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.logger))

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/lookup", h.lookup)
		if h.annotator != nil {
			r.Post("/annotate", h.annotate)
		}
	})
	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) {
	position := r.URL.Query().Get("fen")
	if position == "" {
		h.writeError(w, http.StatusBadRequest, "missing fen query parameter")
		return
	}
	fp, err := annotator.Fingerprint(position)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, found, err := h.cache.Get(r.Context(), fp)
	if err != nil {
		h.logger.Error("lookup failed", zap.String("fingerprint", fp), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "cache lookup failed")
		return
	}

	resp := LookupResponse{Fingerprint: fp, Found: found}
	if found {
		resp.Annotation = rec.Annotation()
		resp.Nodes = rec.Nodes
		resp.Depth = rec.Depth
		resp.PrincipalLine = rec.PrincipalLine
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// annotate reads one PGN game. An incomplete game is still returned, with
// status 502 when an engine failed.
func (h *handler) annotate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPGNBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	src, err := annotator.ParsePGN(string(body))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	game, err := h.annotator.AnnotateGame(r.Context(), src)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, game)
	case errors.Is(err, annotator.ErrEngineUnavailable) && game != nil:
		h.writeJSON(w, http.StatusBadGateway, game)
	case game != nil:
		h.writeJSON(w, http.StatusInternalServerError, game)
	default:
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("writing response", zap.Error(err))
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
