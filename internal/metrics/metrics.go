package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pair-quiz-service/internal/domain"
)

const namespace = "pair_quiz"

// Recorder exports game lifecycle counters to Prometheus. A nil *Recorder records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	gamesCreated  prometheus.Counter
	gamesStarted  prometheus.Counter
	gamesFinished *prometheus.CounterVec
	answers       *prometheus.CounterVec
	raceLost      prometheus.Counter
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		gamesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_created_total",
			Help:      "Pending games opened by a first player.",
		}),
		gamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Games activated by a second player.",
		}),
		gamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games by how they ended.",
		}, []string{"forfeit"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Recorded answers by status.",
		}, []string{"status"}),
		raceLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_races_lost_total",
			Help:      "Attempts to join a pending game that another player claimed first.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	r.registry.MustRegister(
		r.gamesCreated, r.gamesStarted, r.gamesFinished, r.answers, r.raceLost, r.requests, r.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) GameCreated() {
	if r == nil {
		return
	}
	r.gamesCreated.Inc()
}

func (r *Recorder) GameStarted() {
	if r == nil {
		return
	}
	r.gamesStarted.Inc()
}

func (r *Recorder) GameFinished(forfeit bool) {
	if r == nil {
		return
	}
	r.gamesFinished.WithLabelValues(strconv.FormatBool(forfeit)).Inc()
}

func (r *Recorder) AnswerRecorded(status domain.AnswerStatus) {
	if r == nil {
		return
	}
	r.answers.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) MatchRaceLost() {
	if r == nil {
		return
	}
	r.raceLost.Inc()
}

// ObserveRequest records one served HTTP request.
func (r *Recorder) ObserveRequest(route string, code int, seconds float64) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	r.latency.WithLabelValues(route).Observe(seconds)
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
