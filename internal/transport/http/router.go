package http

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"pair-quiz-service/internal/app"
	"pair-quiz-service/internal/logging"
	"pair-quiz-service/internal/metrics"
)

// RoutePrefix is the base path of every pair quiz endpoint.
const RoutePrefix = "/pair-game-quiz"

type RouterConfig struct {
	AllowedOrigins []string
	// Metrics may be nil, which disables /metrics and request instrumentation.
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// NewRouter wires the REST and websocket handlers behind JWT auth and CORS.
func NewRouter(service *app.PairGameService, auth *Authenticator, cfg RouterConfig) http.Handler {
	pairs := NewPairsHandler(service, cfg.Logger)
	ws := NewWSHandler(service, cfg.Logger)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix(RoutePrefix).Subrouter()
	api.Use(auth.Middleware)
	api.HandleFunc("/pairs/connection", pairs.Connect).Methods(http.MethodPost)
	api.HandleFunc("/pairs/my-current/answers", pairs.SubmitAnswer).Methods(http.MethodPost)
	api.HandleFunc("/pairs/my-current/ws", ws.ServeWS).Methods(http.MethodGet)
	api.HandleFunc("/pairs/my-current", pairs.Current).Methods(http.MethodGet)
	api.HandleFunc("/pairs/{id}", pairs.ByID).Methods(http.MethodGet)
	api.HandleFunc("/users/my-statistic", pairs.Statistic).Methods(http.MethodGet)

	r.Use(instrument(cfg.Metrics, cfg.Logger))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// instrument records per-route status codes and latency and logs server errors.
func instrument(recorder *metrics.Recorder, logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			recorder.ObserveRequest(route, sw.status, time.Since(start).Seconds())
			if sw.status >= http.StatusInternalServerError {
				logging.Error(logger, "request served with server error", nil,
					logging.FieldMethod, r.Method, logging.FieldPath, route, logging.FieldStatusCode, sw.status)
			} else {
				logging.Debug(logger, "request served",
					logging.FieldMethod, r.Method, logging.FieldPath, route, logging.FieldStatusCode, sw.status)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrader take over the wrapped connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wrote = true
	return hj.Hijack()
}
