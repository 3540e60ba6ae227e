package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bluenviron/mediatrim/internal/conf"
	"github.com/bluenviron/mediatrim/internal/test"
	"github.com/bluenviron/mediatrim/internal/trim"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsJobs(t *testing.T) {
	m := &Metrics{
		Parent: test.NilLogger,
	}
	err := m.Initialize()
	require.NoError(t, err)
	defer m.Close()

	m.JobStarted()
	m.JobStarted()
	require.Equal(t, float64(2), testutil.ToFloat64(m.jobsInProgress))

	m.JobFinished(trim.StateCompleted, 2*time.Second, 1000)
	m.JobFinished(trim.StateFailed, time.Second, 0)

	require.Equal(t, float64(0), testutil.ToFloat64(m.jobsInProgress))
	require.Equal(t, float64(1), testutil.ToFloat64(m.jobsTotal.WithLabelValues("completed")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.jobsTotal.WithLabelValues("failed")))
	require.Equal(t, float64(0), testutil.ToFloat64(m.jobsTotal.WithLabelValues("cancelled")))
	require.Equal(t, float64(1000), testutil.ToFloat64(m.bytesWritten))
	require.Equal(t, 1, testutil.CollectAndCount(m.jobDuration))
}

func TestMetricsServer(t *testing.T) {
	m := &Metrics{
		Address:      "localhost:9998",
		AllowOrigin:  "*",
		ReadTimeout:  conf.Duration(10 * time.Second),
		WriteTimeout: conf.Duration(10 * time.Second),
		Parent:       test.NilLogger,
	}
	err := m.Initialize()
	require.NoError(t, err)
	defer m.Close()

	m.JobStarted()
	m.JobFinished(trim.StateCompleted, 500*time.Millisecond, 4096)

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	res, err := hc.Get("http://localhost:9998/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	byts, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	for _, line := range []string{
		`mediatrim_jobs_total{result="completed"} 1`,
		`mediatrim_jobs_total{result="cancelled"} 0`,
		`mediatrim_jobs_in_progress 0`,
		`mediatrim_bytes_written_total 4096`,
		`mediatrim_job_duration_seconds_count 1`,
	} {
		require.True(t, strings.Contains(string(byts), line+"\n"), line)
	}
}
