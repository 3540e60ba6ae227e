package processing

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/mediatrim/internal/defs"
	"github.com/bluenviron/mediatrim/internal/logger"
	"github.com/bluenviron/mediatrim/internal/test"
	"github.com/bluenviron/mediatrim/internal/trim"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testStats struct {
	mutex    sync.Mutex
	started  int
	finished []trim.State
	bytes    uint64
}

func (s *testStats) JobStarted() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.started++
}

func (s *testStats) JobFinished(state trim.State, _ time.Duration, bytesWritten uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.finished = append(s.finished, state)
	s.bytes += bytesWritten
}

func newService(t *testing.T, dir string) *Service {
	s := &Service{
		OutputDirectory:  filepath.Join(dir, "out"),
		OutputFilePrefix: "TRIM_",
		MinTrimDuration:  500 * time.Millisecond,
		HistorySize:      10,
		Parent:           test.NilLogger,
		timeNow: func() time.Time {
			return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		},
	}
	s.Initialize()
	t.Cleanup(s.Close)
	return s
}

func writeSource(t *testing.T, dir string) string {
	fpath := filepath.Join(dir, "source.mp4")
	err := test.Media{
		Duration: 10 * time.Second,
		Video:    true,
		Audio:    true,
	}.WriteFile(fpath)
	require.NoError(t, err)
	return fpath
}

func waitFinished(t *testing.T, s *Service, id uuid.UUID) *defs.APITrim {
	var item *defs.APITrim

	require.Eventually(t, func() bool {
		var err error
		item, err = s.Get(id)
		return err == nil && item.Finished != nil
	}, 10*time.Second, 5*time.Millisecond)

	return item
}

func TestServiceSubmit(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	stats := &testStats{}

	s := newService(t, dir)
	s.Stats = stats

	src := writeSource(t, dir)

	item, err := s.Submit(&defs.APITrimAddRequest{
		Source:  src,
		StartMs: 2000,
		EndMs:   8000,
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "out", "TRIM_20240102_030405.mp4"), item.Destination)
	require.Equal(t, src, item.Source)

	item = waitFinished(t, s, item.ID)
	require.Equal(t, defs.APITrimStateCompleted, item.State)
	require.Equal(t, float64(1), item.Progress)
	require.Nil(t, item.Error)
	require.NotZero(t, item.BytesWritten)
	require.True(t, test.FileExists(item.Destination))

	list := s.List()
	require.Len(t, list, 1)
	require.Equal(t, item.ID, list[0].ID)

	outputs, err := s.Outputs()
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, "TRIM_20240102_030405.mp4", outputs[0].Name)
	require.Equal(t, item.BytesWritten, outputs[0].Size)

	stats.mutex.Lock()
	defer stats.mutex.Unlock()
	require.Equal(t, 1, stats.started)
	require.Equal(t, []trim.State{trim.StateCompleted}, stats.finished)
	require.Equal(t, item.BytesWritten, stats.bytes)
}

func TestServiceNaming(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := newService(t, dir)

	err = os.MkdirAll(s.OutputDirectory, 0o755)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(s.OutputDirectory, "TRIM_20240102_030405.mp4"), nil, 0o644)
	require.NoError(t, err)

	for _, ca := range []struct {
		name     string
		in       string
		expected string
	}{
		{
			"generated",
			"",
			"TRIM_20240102_030405_2.mp4",
		},
		{
			"custom",
			"clip.mp4",
			"clip.mp4",
		},
		{
			"custom without extension",
			"clip",
			"clip.mp4",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			pa, err2 := s.outputPath(ca.in)
			require.NoError(t, err2)
			require.Equal(t, filepath.Join(s.OutputDirectory, ca.expected), pa)
		})
	}

	for _, name := range []string{"..", "../clip.mp4", "sub/clip.mp4", `sub\clip.mp4`} {
		t.Run("invalid "+name, func(t *testing.T) {
			_, err2 := s.outputPath(name)
			require.ErrorIs(t, err2, ErrInvalidRequest)
		})
	}
}

func TestServiceFailure(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	stats := &testStats{}

	s := newService(t, dir)
	s.Stats = stats

	item, err := s.Submit(&defs.APITrimAddRequest{
		Source:  filepath.Join(dir, "missing.mp4"),
		StartMs: 0,
		EndMs:   1000,
	})
	require.NoError(t, err)

	item = waitFinished(t, s, item.ID)
	require.Equal(t, defs.APITrimStateFailed, item.State)
	require.NotNil(t, item.Error)
	require.Equal(t, "source file missing or unreadable", *item.Error)
	require.False(t, test.FileExists(item.Destination))

	stats.mutex.Lock()
	defer stats.mutex.Unlock()
	require.Equal(t, []trim.State{trim.StateFailed}, stats.finished)
}

func TestServiceInvalidRequest(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := newService(t, dir)

	_, err = s.Submit(&defs.APITrimAddRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.Get(uuid.New())
	require.ErrorIs(t, err, ErrJobNotFound)

	err = s.Cancel(uuid.New())
	require.ErrorIs(t, err, ErrJobNotFound)

	require.Empty(t, s.List())
}

func TestServiceBusyAndCancel(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	progress := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	s := newService(t, dir)
	s.ProgressInterval = -1
	s.Parent = test.Logger(func(_ logger.Level, format string, _ ...interface{}) {
		if strings.Contains(format, "progress") {
			once.Do(func() {
				close(progress)
				<-release
			})
		}
	})

	src := writeSource(t, dir)

	item, err := s.Submit(&defs.APITrimAddRequest{
		Source:  src,
		StartMs: 0,
		EndMs:   10000,
	})
	require.NoError(t, err)

	<-progress

	_, err = s.Submit(&defs.APITrimAddRequest{
		Source:  src,
		StartMs: 0,
		EndMs:   10000,
	})
	require.ErrorIs(t, err, trim.ErrBusy)

	cur, err := s.Get(item.ID)
	require.NoError(t, err)
	require.Equal(t, defs.APITrimStateCopying, cur.State)

	err = s.Cancel(item.ID)
	require.NoError(t, err)
	close(release)

	item = waitFinished(t, s, item.ID)
	require.Equal(t, defs.APITrimStateCancelled, item.State)
	require.Equal(t, "cancelled", *item.Error)
	require.False(t, test.FileExists(item.Destination))

	// a new job can be started once the previous one has ended
	item2, err := s.Submit(&defs.APITrimAddRequest{
		Source:  src,
		Name:    "second.mp4",
		StartMs: 0,
		EndMs:   1000,
	})
	require.NoError(t, err)

	item2 = waitFinished(t, s, item2.ID)
	require.Equal(t, defs.APITrimStateCompleted, item2.State)
	require.Len(t, s.List(), 2)
}

func TestServiceTimeout(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	var once sync.Once

	s := newService(t, dir)
	s.ProgressInterval = -1
	s.JobTimeout = time.Millisecond
	s.Parent = test.Logger(func(_ logger.Level, format string, _ ...interface{}) {
		if strings.Contains(format, "progress") {
			once.Do(func() {
				time.Sleep(100 * time.Millisecond)
			})
		}
	})

	item, err := s.Submit(&defs.APITrimAddRequest{
		Source:  writeSource(t, dir),
		StartMs: 0,
		EndMs:   10000,
	})
	require.NoError(t, err)

	item = waitFinished(t, s, item.ID)
	require.Equal(t, defs.APITrimStateCancelled, item.State)
	require.Equal(t, "job timed out", *item.Error)
}

func TestServiceTimeoutAfterCompletion(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := newService(t, dir)
	s.JobTimeout = 50 * time.Millisecond

	item, err := s.Submit(&defs.APITrimAddRequest{
		Source:  filepath.Join(dir, "missing.mp4"),
		StartMs: 0,
		EndMs:   1000,
	})
	require.NoError(t, err)

	item = waitFinished(t, s, item.ID)
	require.Equal(t, defs.APITrimStateFailed, item.State)

	// let the timeout expire
	time.Sleep(150 * time.Millisecond)

	item, err = s.Get(item.ID)
	require.NoError(t, err)
	require.Equal(t, defs.APITrimStateFailed, item.State)
	require.Equal(t, "source file missing or unreadable", *item.Error)

	s.mutex.RLock()
	j := s.current
	s.mutex.RUnlock()

	j.mutex.Lock()
	defer j.mutex.Unlock()
	require.True(t, j.terminated)
	require.False(t, j.timedOut)
}

func TestServiceHistorySize(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := newService(t, dir)
	s.HistorySize = 2

	var ids []uuid.UUID

	for i := range 3 {
		item, err2 := s.Submit(&defs.APITrimAddRequest{
			Source: filepath.Join(dir, "missing.mp4"),
			Name:   "out" + string(rune('a'+i)),
			EndMs:  1000,
		})
		require.NoError(t, err2)
		waitFinished(t, s, item.ID)
		ids = append(ids, item.ID)
	}

	list := s.List()
	require.Len(t, list, 2)
	require.Equal(t, ids[1], list[0].ID)
	require.Equal(t, ids[2], list[1].ID)

	_, err = s.Get(ids[0])
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestServiceProbe(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := newService(t, dir)

	res, err := s.Probe(writeSource(t, dir))
	require.NoError(t, err)
	require.InDelta(t, 10000, res.DurationMs, 10)
	require.Len(t, res.Tracks, 2)

	require.Equal(t, "video", res.Tracks[0].Type)
	require.Equal(t, "avc1", res.Tracks[0].Codec)
	require.Equal(t, uint32(90000), res.Tracks[0].TimeScale)
	require.Equal(t, 1920, res.Tracks[0].Width)
	require.Equal(t, 1080, res.Tracks[0].Height)

	require.Equal(t, "audio", res.Tracks[1].Type)
	require.Equal(t, "mp4a", res.Tracks[1].Codec)
	require.Equal(t, 48000, res.Tracks[1].SampleRate)
	require.Equal(t, 2, res.Tracks[1].ChannelCount)

	_, err = s.Probe(filepath.Join(dir, "missing.mp4"))
	require.Error(t, err)

	_, err = s.Probe("")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestServiceOutputsMissingDirectory(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-processing")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := newService(t, dir)

	outputs, err := s.Outputs()
	require.NoError(t, err)
	require.Empty(t, outputs)
}
