package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	SchedulerRuns   prometheus.Counter
	RoundsCreated   *prometheus.CounterVec
	RoundsActivated *prometheus.CounterVec
	RoundsSettled   *prometheus.CounterVec
	ClaimsTotal     *prometheus.CounterVec
	PayoutsPending  prometheus.Gauge
}

func New(namespace string) *Metrics {
	m := &Metrics{
		SchedulerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Total scheduler invocations",
		}),
		RoundsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_created_total",
			Help:      "Rounds created, by variant",
		}, []string{"variant"}),
		RoundsActivated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_activated_total",
			Help:      "Rounds activated, by variant",
		}, []string{"variant"}),
		RoundsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_settled_total",
			Help:      "Rounds settled, by variant and result (normal|forced)",
		}, []string{"variant", "result"}),
		ClaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts, by outcome kind",
		}, []string{"result"}),
		PayoutsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payouts_pending",
			Help:      "Dispatched payouts awaiting reconciliation",
		}),
	}

	prometheus.MustRegister(
		m.SchedulerRuns,
		m.RoundsCreated,
		m.RoundsActivated,
		m.RoundsSettled,
		m.ClaimsTotal,
		m.PayoutsPending,
	)

	return m
}

func Register(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
