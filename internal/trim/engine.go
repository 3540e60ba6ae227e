// Package trim contains the lossless trim engine.
package trim

import (
	"errors"
	"sync"
	"time"

	"github.com/bluenviron/mediatrim/internal/logger"
	"golang.org/x/time/rate"
)

const (
	defaultMinDuration      = 500 * time.Millisecond
	defaultProgressInterval = 100 * time.Millisecond
)

// Callback receives the events of a job.
// Methods are called by the goroutine of the job, never concurrently.
type Callback interface {
	// OnProgress is called with a fraction in [0, 1]; values are non-decreasing.
	OnProgress(progress float64)

	// OnSuccess is called once when the output has been written.
	OnSuccess(outputPath string)

	// OnFailed is called once when the job fails or is cancelled.
	OnFailed(err error)
}

// Status is the status of the last job.
type Status struct {
	State        State
	Progress     float64
	Source       string
	Destination  string
	BytesWritten uint64
	Err          error
}

// Engine copies a time window of a MP4 file into another MP4 file,
// without re-encoding. It runs one job at a time.
type Engine struct {
	Callback         Callback
	MinDuration      time.Duration
	ProgressInterval time.Duration
	MaxSampleSize    uint64
	Parent           logger.Writer

	mutex   sync.Mutex
	job     *job
	running bool
	lastErr error
	wg      sync.WaitGroup
}

// Initialize initializes Engine.
func (e *Engine) Initialize() {
	if e.MinDuration == 0 {
		e.MinDuration = defaultMinDuration
	}
	if e.ProgressInterval == 0 {
		e.ProgressInterval = defaultProgressInterval
	}
}

// Close cancels the job in progress and waits for it.
func (e *Engine) Close() {
	e.Cancel()
	e.Wait()
}

// Log implements logger.Writer.
func (e *Engine) Log(level logger.Level, format string, args ...interface{}) {
	e.Parent.Log(level, "[trim] "+format, args...)
}

// Trim starts copying [startMs, endMs) of source into dest.
// The outcome is reported through Callback.
// It returns ErrBusy if another job is in progress, including a job
// whose terminal callback has not returned yet; therefore Trim
// cannot be called from inside a callback.
func (e *Engine) Trim(source string, dest string, startMs int64, endMs int64) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.running {
		return ErrBusy
	}

	// without an interval, every progress event is reported
	every := 0
	interval := e.ProgressInterval
	if interval <= 0 {
		every = 1
		interval = 0
	}

	j := &job{
		engine:        e,
		source:        source,
		dest:          dest,
		startMs:       startMs,
		endMs:         endMs,
		progressLimit: rate.Sometimes{Every: every, Interval: interval},
	}

	e.job = j
	e.running = true
	e.lastErr = nil

	e.wg.Add(1)
	go e.runJob(j)

	return nil
}

func (e *Engine) runJob(j *job) {
	defer e.wg.Done()

	e.Log(logger.Info, "trimming %s [%d, %d) ms into %s", j.source, j.startMs, j.endMs, j.dest)
	start := time.Now()

	err := j.run()

	e.mutex.Lock()
	e.lastErr = err
	e.mutex.Unlock()

	switch {
	case err == nil:
		j.setProgress(1)
		j.setState(StateCompleted)
		e.Log(logger.Info, "%s written in %v", j.dest, time.Since(start).Round(time.Millisecond))
		e.Callback.OnProgress(1)
		e.Callback.OnSuccess(j.dest)

	case errors.Is(err, ErrCancelled):
		j.setState(StateCancelled)
		e.Log(logger.Info, "trim of %s cancelled", j.source)
		e.Callback.OnFailed(err)

	default:
		j.setState(StateFailed)
		e.Log(logger.Warn, "trim of %s failed: %v", j.source, err)
		e.Callback.OnFailed(err)
	}

	e.mutex.Lock()
	e.running = false
	e.mutex.Unlock()
}

// Cancel asks the job in progress to stop.
// It can be called from any goroutine.
func (e *Engine) Cancel() {
	e.mutex.Lock()
	j := e.job
	e.mutex.Unlock()

	if j != nil {
		j.cancelled.Store(true)
	}
}

// Wait waits for the job in progress to end.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Status returns the status of the job in progress or of the last job.
func (e *Engine) Status() Status {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.job == nil {
		return Status{State: StateIdle}
	}

	return Status{
		State:        e.job.getState(),
		Progress:     e.job.getProgress(),
		Source:       e.job.source,
		Destination:  e.job.dest,
		BytesWritten: e.job.written.Load(),
		Err:          e.lastErr,
	}
}
