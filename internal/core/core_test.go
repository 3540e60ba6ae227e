package core

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluenviron/mediatrim/internal/defs"
	"github.com/bluenviron/mediatrim/internal/test"
	"github.com/bluenviron/mediatrim/internal/track"
	"github.com/stretchr/testify/require"
)

func newInstance(t *testing.T, conf string) (*Core, string) {
	dir, err := os.MkdirTemp("", "mediatrim-core")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	confPath := filepath.Join(dir, "mediatrim.yml")
	err = os.WriteFile(confPath, []byte(conf), 0o644)
	require.NoError(t, err)

	p, ok := New([]string{confPath})
	require.True(t, ok)

	return p, dir
}

func getInfo(hc *http.Client) (*defs.APIInfo, error) {
	res, err := hc.Get("http://localhost:9997/v1/info")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var out defs.APIInfo
	err = json.NewDecoder(res.Body).Decode(&out)
	return &out, err
}

func TestCoreAPI(t *testing.T) {
	p, _ := newInstance(t, "api: yes\n"+
		"logLevel: debug\n")
	defer p.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	info, err := getInfo(hc)
	require.NoError(t, err)
	require.Equal(t, version, info.Version)
}

func TestCoreReload(t *testing.T) {
	p, dir := newInstance(t, "api: yes\n")
	defer p.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	_, err := getInfo(hc)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(dir, "mediatrim.yml"), []byte("api: no\n"), 0o644)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tr.CloseIdleConnections()
		_, err2 := getInfo(hc)
		return err2 != nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCoreInvalidConf(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-core")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	confPath := filepath.Join(dir, "mediatrim.yml")
	err = os.WriteFile(confPath, []byte("unknownKey: yes\n"), 0o644)
	require.NoError(t, err)

	_, ok := New([]string{confPath})
	require.False(t, ok)
}

func TestCoreTrimCommand(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-core")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "source.mp4")
	err = test.Media{
		Duration: 5 * time.Second,
		Video:    true,
		Audio:    true,
	}.WriteFile(src)
	require.NoError(t, err)

	dest := filepath.Join(dir, "out", "clip.mp4")

	p, ok := New([]string{"trim", src, dest, "--start=1s", "--end=3s"})
	require.True(t, ok)
	p.Wait()
	require.False(t, p.Failed())

	r := &track.Reader{Path: dest}
	err = r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 2, r.TrackCount())
	require.InDelta(t, 2000000, r.TrackFormat(0).DurationUs, 34000)
}

func TestCoreTrimCommandFailure(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-core")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	p, ok := New([]string{"trim", filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "clip.mp4"), "--end=3s"})
	require.True(t, ok)
	p.Wait()
	require.True(t, p.Failed())
	require.False(t, test.FileExists(filepath.Join(dir, "clip.mp4")))
}

func TestCoreProbeCommand(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediatrim-core")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "source.mp4")
	err = test.Media{
		Duration: 2 * time.Second,
		Video:    true,
	}.WriteFile(src)
	require.NoError(t, err)

	p, ok := New([]string{"probe", src})
	require.True(t, ok)
	p.Wait()
	require.False(t, p.Failed())

	p, ok = New([]string{"probe", filepath.Join(dir, "missing.mp4")})
	require.True(t, ok)
	p.Wait()
	require.True(t, p.Failed())
}
