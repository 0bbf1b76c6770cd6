package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Campaign run metrics

	CampaignRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "runs_total",
		Help:      "Total campaign runs, by outcome.",
	}, []string{"outcome"})

	CampaignRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "campaign",
		Name:      "run_duration_seconds",
		Help:      "Duration of one campaign run that held the lock, by outcome (success or failed).",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	CampaignUsersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "users_total",
		Help:      "Users handled by a campaign pass, by pass and outcome.",
	}, []string{"pass", "outcome"})

	CampaignUsersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campaign",
		Name:      "users_in_flight",
		Help:      "Number of users currently being processed.",
	})

	SchedulerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campaign",
		Name:      "scheduler_start_time_seconds",
		Help:      "Unix timestamp when the scheduler started.",
	})

	// Discount metrics

	DiscountsIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "discounts_issued_total",
		Help:      "Discount issue calls, by result (created or reused).",
	}, []string{"result"})

	DiscountRedemptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "discount_redemptions_total",
		Help:      "Discount redemption attempts, by outcome.",
	}, []string{"outcome"})

	DiscountsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "discounts_expired_total",
		Help:      "Discounts expired by the reset pass.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "campaign",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		CampaignRunsTotal,
		CampaignRunDuration,
		CampaignUsersTotal,
		CampaignUsersInFlight,
		SchedulerStartTime,
		DiscountsIssuedTotal,
		DiscountRedemptionsTotal,
		DiscountsExpiredTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// HealthReporter is satisfied by *health.Checker.
type HealthReporter interface {
	LivenessHandler() http.Handler
	ReadinessHandler() http.Handler
}

// NewServer exposes /metrics plus the liveness and readiness probes.
func NewServer(addr string, checker HealthReporter) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checker.LivenessHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
	return &http.Server{Addr: addr, Handler: mux}
}
