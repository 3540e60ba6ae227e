package processing

import (
	"errors"
	"sync"
	"time"

	"github.com/bluenviron/mediatrim/internal/defs"
	"github.com/bluenviron/mediatrim/internal/logger"
	"github.com/bluenviron/mediatrim/internal/trim"
	"github.com/google/uuid"
)

var errTimedOut = errors.New("job timed out")

type job struct {
	service     *Service
	id          uuid.UUID
	created     time.Time
	source      string
	destination string
	startMs     int64
	endMs       int64

	engine *trim.Engine
	timer  *time.Timer

	mutex      sync.Mutex
	terminated bool
	timedOut   bool
	finished   *time.Time
}

func (j *job) initialize() {
	j.engine = &trim.Engine{
		Callback:         j,
		MinDuration:      j.service.MinTrimDuration,
		ProgressInterval: j.service.ProgressInterval,
		MaxSampleSize:    j.service.MaxSampleSize,
		Parent:           j,
	}
	j.engine.Initialize()
}

// the timer is armed before the job starts and the mutex is held until
// Trim returns, so that neither the timeout nor the terminal callback
// can run in between.
func (j *job) start() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.service.JobTimeout > 0 {
		j.timer = time.AfterFunc(j.service.JobTimeout, j.onTimeout)
	}

	err := j.engine.Trim(j.source, j.destination, j.startMs, j.endMs)
	if err != nil {
		if j.timer != nil {
			j.timer.Stop()
		}
		return err
	}

	return nil
}

func (j *job) stopTimer() {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	j.terminated = true

	if j.timer != nil {
		j.timer.Stop()
	}
}

// Log implements logger.Writer.
func (j *job) Log(level logger.Level, format string, args ...interface{}) {
	j.service.Log(level, "[job %v] "+format, append([]interface{}{j.id}, args...)...)
}

func (j *job) onTimeout() {
	j.mutex.Lock()
	if j.terminated {
		j.mutex.Unlock()
		return
	}
	j.timedOut = true
	j.mutex.Unlock()

	j.Log(logger.Warn, "timed out after %v, cancelling", j.service.JobTimeout)
	j.engine.Cancel()
}

// hooks and stats are handled before the job is marked as finished,
// in order to allow waiting for them.
func (j *job) onTerminal(cmdstr string, reason string) {
	j.stopTimer()

	now := j.service.timeNow()
	st := j.engine.Status()

	if j.service.Stats != nil {
		j.service.Stats.JobFinished(st.State, now.Sub(j.created), st.BytesWritten)
	}

	j.service.runHook(cmdstr, j, reason)

	j.mutex.Lock()
	j.finished = &now
	j.mutex.Unlock()
}

// OnProgress implements trim.Callback.
func (j *job) OnProgress(progress float64) {
	j.Log(logger.Debug, "progress %.1f%%", progress*100)
}

// OnSuccess implements trim.Callback.
func (j *job) OnSuccess(outputPath string) {
	j.onTerminal(j.service.RunOnTrimComplete, "")
	j.Log(logger.Info, "completed: %s", outputPath)
}

// OnFailed implements trim.Callback.
func (j *job) OnFailed(err error) {
	reason := j.reason(err)
	j.onTerminal(j.service.RunOnTrimFail, reason)
	j.Log(logger.Info, "failed: %s", reason)
}

func (j *job) reason(err error) string {
	j.mutex.Lock()
	timedOut := j.timedOut
	j.mutex.Unlock()

	if timedOut && errors.Is(err, trim.ErrCancelled) {
		return errTimedOut.Error()
	}
	return trim.Reason(err)
}

func (j *job) apiItem() *defs.APITrim {
	st := j.engine.Status()

	j.mutex.Lock()
	finished := j.finished
	j.mutex.Unlock()

	ret := &defs.APITrim{
		ID:           j.id,
		Created:      j.created,
		Finished:     finished,
		Source:       j.source,
		Destination:  j.destination,
		StartMs:      j.startMs,
		EndMs:        j.endMs,
		Progress:     st.Progress,
		BytesWritten: st.BytesWritten,
	}

	switch st.State {
	case trim.StateCopying:
		ret.State = defs.APITrimStateCopying

	case trim.StateCompleted:
		ret.State = defs.APITrimStateCompleted

	case trim.StateCancelled:
		ret.State = defs.APITrimStateCancelled

	case trim.StateFailed:
		ret.State = defs.APITrimStateFailed

	default:
		ret.State = defs.APITrimStateValidating
	}

	if st.Err != nil {
		v := j.reason(st.Err)
		ret.Error = &v
	}

	return ret
}
