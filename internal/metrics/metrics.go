// Package metrics contains the metrics provider.
package metrics

import (
	"time"

	"github.com/bluenviron/mediatrim/internal/conf"
	"github.com/bluenviron/mediatrim/internal/logger"
	"github.com/bluenviron/mediatrim/internal/protocols/httpp"
	"github.com/bluenviron/mediatrim/internal/trim"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediatrim"

// Metrics is a metrics provider.
type Metrics struct {
	Address      string
	AllowOrigin  string
	ReadTimeout  conf.Duration
	WriteTimeout conf.Duration
	Parent       logger.Writer

	registry       *prometheus.Registry
	jobsTotal      *prometheus.CounterVec
	jobsInProgress prometheus.Gauge
	bytesWritten   prometheus.Counter
	jobDuration    prometheus.Histogram
	httpServer     *httpp.Server
}

// Initialize initializes Metrics.
func (m *Metrics) Initialize() error {
	m.registry = prometheus.NewRegistry()

	m.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Total number of finished trim jobs by result",
	}, []string{"result"})

	m.jobsInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_progress",
		Help:      "Number of trim jobs in progress",
	})

	m.bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_written_total",
		Help:      "Total bytes written into output files",
	})

	m.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of trim jobs",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})

	m.registry.MustRegister(
		m.jobsTotal,
		m.jobsInProgress,
		m.bytesWritten,
		m.jobDuration,
	)

	// results are exported even before the first job ends
	for _, s := range []trim.State{trim.StateCompleted, trim.StateCancelled, trim.StateFailed} {
		m.jobsTotal.WithLabelValues(s.String())
	}

	if m.Address == "" {
		return nil
	}

	router := gin.New()
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})))

	m.httpServer = &httpp.Server{
		Address:      m.Address,
		AllowOrigin:  m.AllowOrigin,
		ReadTimeout:  time.Duration(m.ReadTimeout),
		WriteTimeout: time.Duration(m.WriteTimeout),
		Handler:      router,
		Parent:       m,
	}
	err := m.httpServer.Initialize()
	if err != nil {
		return err
	}

	m.Log(logger.Info, "listener opened on "+m.Address)

	return nil
}

// Close closes Metrics.
func (m *Metrics) Close() {
	if m.httpServer != nil {
		m.Log(logger.Info, "listener is closing")
		m.httpServer.Close()
	}
}

// Log implements logger.Writer.
func (m *Metrics) Log(level logger.Level, format string, args ...interface{}) {
	m.Parent.Log(level, "[metrics] "+format, args...)
}

// JobStarted implements processing.Stats.
func (m *Metrics) JobStarted() {
	m.jobsInProgress.Inc()
}

// JobFinished implements processing.Stats.
func (m *Metrics) JobFinished(state trim.State, duration time.Duration, bytesWritten uint64) {
	m.jobsInProgress.Dec()
	m.jobsTotal.WithLabelValues(state.String()).Inc()
	m.bytesWritten.Add(float64(bytesWritten))
	m.jobDuration.Observe(duration.Seconds())
}
