// Package processing contains the service that runs trim jobs.
package processing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/mediatrim/internal/defs"
	"github.com/bluenviron/mediatrim/internal/externalcmd"
	"github.com/bluenviron/mediatrim/internal/logger"
	"github.com/bluenviron/mediatrim/internal/track"
	"github.com/bluenviron/mediatrim/internal/trim"
	"github.com/google/uuid"
)

const outputExtension = ".mp4"

// errors.
var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Stats receives job events.
type Stats interface {
	JobStarted()
	JobFinished(state trim.State, duration time.Duration, bytesWritten uint64)
}

// Service runs trim jobs one at a time and keeps a history of them.
type Service struct {
	OutputDirectory   string
	OutputFilePrefix  string
	MinTrimDuration   time.Duration
	ProgressInterval  time.Duration
	MaxSampleSize     uint64
	JobTimeout        time.Duration
	HistorySize       int
	RunOnTrimComplete string
	RunOnTrimFail     string
	ExternalCmdPool   *externalcmd.Pool
	Stats             Stats
	Parent            logger.Writer

	timeNow func() time.Time

	mutex   sync.RWMutex
	jobs    []*job
	current *job
}

// Initialize initializes Service.
func (s *Service) Initialize() {
	if s.timeNow == nil {
		s.timeNow = time.Now
	}
	if s.HistorySize <= 0 {
		s.HistorySize = 100
	}
}

// Close cancels the job in progress and waits for it.
func (s *Service) Close() {
	s.mutex.RLock()
	cur := s.current
	s.mutex.RUnlock()

	if cur != nil {
		cur.engine.Close()
	}
}

// Log implements logger.Writer.
func (s *Service) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[processing] "+format, args...)
}

func (s *Service) outputPath(name string) (string, error) {
	if name == "" {
		base := s.OutputFilePrefix + s.timeNow().Format("20060102_150405")
		name = base + outputExtension

		// jobs started in the same second get a counter
		for i := 2; ; i++ {
			_, err := os.Stat(filepath.Join(s.OutputDirectory, name))
			if err != nil {
				break
			}
			name = base + "_" + strconv.Itoa(i) + outputExtension
		}
	} else {
		if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return "", fmt.Errorf("%w: invalid name '%s'", ErrInvalidRequest, name)
		}
		if filepath.Ext(name) == "" {
			name += outputExtension
		}
	}

	return filepath.Join(s.OutputDirectory, name), nil
}

// Submit starts a trim job.
// It returns trim.ErrBusy when another job is in progress.
func (s *Service) Submit(req *defs.APITrimAddRequest) (*defs.APITrim, error) {
	if req.Source == "" {
		return nil, fmt.Errorf("%w: source is empty", ErrInvalidRequest)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.current != nil && !s.current.engine.Status().State.IsTerminal() {
		return nil, trim.ErrBusy
	}

	dest, err := s.outputPath(req.Name)
	if err != nil {
		return nil, err
	}

	j := &job{
		service:     s,
		id:          uuid.New(),
		created:     s.timeNow(),
		source:      req.Source,
		destination: dest,
		startMs:     req.StartMs,
		endMs:       req.EndMs,
	}
	j.initialize()

	if s.Stats != nil {
		s.Stats.JobStarted()
	}

	err = j.start()
	if err != nil {
		if s.Stats != nil {
			s.Stats.JobFinished(trim.StateFailed, 0, 0)
		}
		return nil, err
	}

	s.current = j
	s.jobs = append(s.jobs, j)

	// history only contains finished jobs, except the last one
	if len(s.jobs) > s.HistorySize {
		s.jobs = s.jobs[len(s.jobs)-s.HistorySize:]
	}

	s.Log(logger.Info, "job %v started: %s [%d, %d) ms -> %s",
		j.id, j.source, j.startMs, j.endMs, j.destination)

	return j.apiItem(), nil
}

// List returns all jobs, oldest first.
func (s *Service) List() []*defs.APITrim {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ret := make([]*defs.APITrim, len(s.jobs))
	for i, j := range s.jobs {
		ret[i] = j.apiItem()
	}
	return ret
}

func (s *Service) find(id uuid.UUID) *job {
	for _, j := range s.jobs {
		if j.id == id {
			return j
		}
	}
	return nil
}

// Get returns a job.
func (s *Service) Get(id uuid.UUID) (*defs.APITrim, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	j := s.find(id)
	if j == nil {
		return nil, ErrJobNotFound
	}

	return j.apiItem(), nil
}

// Cancel asks a job to stop. Cancelling a finished job has no effect.
func (s *Service) Cancel(id uuid.UUID) error {
	s.mutex.RLock()
	j := s.find(id)
	s.mutex.RUnlock()

	if j == nil {
		return ErrJobNotFound
	}

	j.engine.Cancel()
	return nil
}

// Probe returns the tracks of a media file.
func (s *Service) Probe(path string) (*defs.APIProbe, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is empty", ErrInvalidRequest)
	}

	r := &track.Reader{
		Path:          path,
		MaxSampleSize: s.MaxSampleSize,
	}
	err := r.Initialize()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ret := &defs.APIProbe{
		Path:       path,
		DurationMs: r.Duration() / 1000,
		Tracks:     make([]defs.APIProbeTrack, r.TrackCount()),
	}

	for i := range r.TrackCount() {
		f := r.TrackFormat(i)

		ret.Tracks[i] = defs.APIProbeTrack{
			Type:         string(f.MediaType),
			Codec:        f.Codec,
			TimeScale:    f.TimeScale,
			DurationMs:   f.DurationUs / 1000,
			Language:     strings.TrimRight(string(f.Language[:]), "\x00"),
			Width:        f.Width,
			Height:       f.Height,
			SampleRate:   f.SampleRate,
			ChannelCount: f.ChannelCount,
		}

		if ret.DurationMs == 0 && f.MediaType == track.MediaTypeVideo {
			ret.DurationMs = f.DurationUs / 1000
		}
	}

	return ret, nil
}

// Outputs returns the MP4 files inside the output directory, sorted by name.
func (s *Service) Outputs() ([]*defs.APIOutput, error) {
	entries, err := os.ReadDir(s.OutputDirectory)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*defs.APIOutput{}, nil
		}
		return nil, err
	}

	ret := []*defs.APIOutput{}

	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), outputExtension) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		ret = append(ret, &defs.APIOutput{
			Name:     e.Name(),
			Size:     uint64(info.Size()),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})

	return ret, nil
}

func (s *Service) runHook(cmdstr string, j *job, reason string) {
	if cmdstr == "" || s.ExternalCmdPool == nil {
		return
	}

	s.Log(logger.Info, "runOnTrim command started for job %v", j.id)

	externalcmd.NewCmd(
		s.ExternalCmdPool,
		cmdstr,
		externalcmd.Environment{
			"MTRIM_JOB_ID": j.id.String(),
			"MTRIM_SOURCE": j.source,
			"MTRIM_OUTPUT": j.destination,
			"MTRIM_REASON": reason,
		},
		func(err error) {
			if err != nil {
				s.Log(logger.Warn, "runOnTrim command of job %v exited: %v", j.id, err)
			}
		})
}
