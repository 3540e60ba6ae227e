package trim

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bluenviron/mediatrim/internal/logger"
	"github.com/bluenviron/mediatrim/internal/track"
	"golang.org/x/time/rate"
)

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// job is a single trim operation.
type job struct {
	engine  *Engine
	source  string
	dest    string
	startMs int64
	endMs   int64

	cancelled atomic.Bool
	state     atomic.Int64
	progress  atomic.Uint64
	written   atomic.Uint64

	videoReader *track.Reader
	audioReader *track.Reader
	writer      *track.Writer

	actualStartMs int64
	actualEndMs   int64
	progressLimit rate.Sometimes
	lastProgress  float64
	cleanedUp     bool
}

func (j *job) Log(level logger.Level, format string, args ...interface{}) {
	j.engine.Log(level, format, args...)
}

func (j *job) setState(s State) {
	j.state.Store(int64(s))
}

func (j *job) getState() State {
	return State(j.state.Load())
}

func (j *job) setProgress(v float64) {
	j.progress.Store(math.Float64bits(v))
}

func (j *job) getProgress() float64 {
	return math.Float64frombits(j.progress.Load())
}

// run performs the trim. Resources are released by a single deferred cleanup,
// whatever the outcome is.
func (j *job) run() (err error) {
	defer func() {
		j.cleanup(err != nil)
	}()

	j.setState(StateValidating)

	err = j.validate()
	if err != nil {
		return err
	}

	j.setState(StateCopying)

	err = j.copy()
	if err != nil {
		return err
	}

	err = j.writer.Finalize()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	j.written.Store(j.writer.BytesWritten())

	return nil
}

// cleanup releases readers and writer.
// When discard is true, the partial output is removed.
func (j *job) cleanup(discard bool) {
	if j.cleanedUp {
		return
	}
	j.cleanedUp = true

	if j.videoReader != nil {
		j.videoReader.Close()
	}

	if j.audioReader != nil {
		j.audioReader.Close()
	}

	if j.writer != nil {
		if discard {
			j.Log(logger.Debug, "discarding partial output %s", j.dest)
		}
		// closing a writer that was not finalized removes the staged file
		j.writer.Close()
	}
}

func (j *job) openReader() (*track.Reader, error) {
	r := &track.Reader{
		Path:          j.source,
		MaxSampleSize: j.engine.MaxSampleSize,
	}
	err := r.Initialize()
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func findTrack(r *track.Reader, mediaType track.MediaType) int {
	for i := 0; i < r.TrackCount(); i++ {
		if r.TrackFormat(i).MediaType == mediaType {
			return i
		}
	}
	return -1
}

func (j *job) validate() error {
	fi, err := os.Stat(j.source)
	if err != nil || !fi.Mode().IsRegular() {
		return ErrSourceUnavailable
	}

	err = os.MkdirAll(filepath.Dir(j.dest), 0o755)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}

	j.videoReader, err = j.openReader()
	if err != nil {
		return err
	}

	videoTrack := findTrack(j.videoReader, track.MediaTypeVideo)
	if videoTrack < 0 {
		return ErrNoVideoTrack
	}

	err = j.videoReader.SelectTrack(videoTrack)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	audioTrack := findTrack(j.videoReader, track.MediaTypeAudio)
	if audioTrack >= 0 {
		j.audioReader, err = j.openReader()
		if err != nil {
			return err
		}

		err = j.audioReader.SelectTrack(audioTrack)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	videoFormat := j.videoReader.TrackFormat(videoTrack)

	durationMs := videoFormat.DurationUs / 1000
	if durationMs <= 0 {
		durationMs = j.videoReader.Duration() / 1000
	}
	if durationMs <= 0 {
		durationMs = j.endMs
	}

	j.actualStartMs = max(0, j.startMs)
	j.actualEndMs = min(durationMs, j.endMs)

	if j.actualStartMs >= j.actualEndMs ||
		time.Duration(j.actualEndMs-j.actualStartMs)*time.Millisecond < j.engine.MinDuration {
		return fmt.Errorf("%w: [%d, %d) ms of a %d ms source",
			ErrInvalidRange, j.startMs, j.endMs, durationMs)
	}

	j.writer = &track.Writer{Path: j.dest}
	err = j.writer.Initialize()
	if err != nil {
		return mapError(err)
	}

	_, err = j.writer.AddTrack(videoFormat)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if j.audioReader != nil {
		_, err = j.writer.AddTrack(j.audioReader.TrackFormat(audioTrack))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	err = j.writer.Start()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return nil
}

func (j *job) copy() error {
	startUs := j.actualStartMs * 1000
	endUs := j.actualEndMs * 1000

	cursors := []*cursor{{
		reader:   j.videoReader,
		outIndex: 0,
		isVideo:  true,
		endUs:    endUs,
	}}

	if j.audioReader != nil {
		cursors = append(cursors, &cursor{
			reader:   j.audioReader,
			outIndex: 1,
			endUs:    endUs,
		})
	}

	for _, c := range cursors {
		err := c.align(startUs)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	for {
		c := pickCursor(cursors)
		if c == nil {
			return nil
		}

		s, err := c.reader.ReadSample()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.done = true
				continue
			}
			return fmt.Errorf("%w: %w", ErrIO, err)
		}

		if j.cancelled.Load() {
			return ErrCancelled
		}

		sampleTimeUs := s.TimeUs
		s.TimeUs -= c.baseTimeUs

		err = j.writer.WriteSample(c.outIndex, s)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}

		j.written.Store(j.writer.BytesWritten())

		if c.isVideo {
			j.reportProgress(sampleTimeUs)
		}
	}
}

func (j *job) reportProgress(sampleTimeUs int64) {
	v := clamp01((float64(sampleTimeUs)/1000 - float64(j.actualStartMs)) /
		float64(j.actualEndMs-j.actualStartMs))

	if v < j.lastProgress {
		return
	}
	j.lastProgress = v
	j.setProgress(v)

	j.progressLimit.Do(func() {
		j.engine.Callback.OnProgress(v)
	})
}
