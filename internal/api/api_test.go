package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluenviron/mediatrim/internal/conf"
	"github.com/bluenviron/mediatrim/internal/defs"
	"github.com/bluenviron/mediatrim/internal/processing"
	"github.com/bluenviron/mediatrim/internal/test"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func tempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "mediatrim-api")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newAPI(t *testing.T, dir string) *API {
	p := &processing.Service{
		OutputDirectory:  filepath.Join(dir, "out"),
		OutputFilePrefix: "TRIM_",
		MinTrimDuration:  500 * time.Millisecond,
		HistorySize:      10,
		Parent:           test.NilLogger,
	}
	p.Initialize()
	t.Cleanup(p.Close)

	a := &API{
		Version:      "v1.2.3",
		Started:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Address:      "localhost:9997",
		AllowOrigin:  "*",
		ReadTimeout:  conf.Duration(10 * time.Second),
		WriteTimeout: conf.Duration(10 * time.Second),
		Processing:   p,
		Parent:       test.NilLogger,
	}
	return a
}

func httpRequest(t *testing.T, hc *http.Client, method string, ur string, in any, out any) int {
	buf := &bytes.Buffer{}
	if in != nil {
		err := json.NewEncoder(buf).Encode(in)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, ur, buf)
	require.NoError(t, err)

	res, err := hc.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	if out != nil {
		err = json.NewDecoder(res.Body).Decode(out)
		require.NoError(t, err)
	}

	return res.StatusCode
}

func TestInfo(t *testing.T) {
	a := newAPI(t, tempDir(t))
	err := a.Initialize()
	require.NoError(t, err)
	defer a.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	var out defs.APIInfo
	code := httpRequest(t, hc, http.MethodGet, "http://localhost:9997/v1/info", nil, &out)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, defs.APIInfo{
		Version: "v1.2.3",
		Started: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}, out)
}

func TestTrims(t *testing.T) {
	dir := tempDir(t)

	src := filepath.Join(dir, "source.mp4")
	err := test.Media{
		Duration: 4 * time.Second,
		Video:    true,
		Audio:    true,
	}.WriteFile(src)
	require.NoError(t, err)

	a := newAPI(t, dir)
	err = a.Initialize()
	require.NoError(t, err)
	defer a.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	var item defs.APITrim
	code := httpRequest(t, hc, http.MethodPost, "http://localhost:9997/v1/trims/add", &defs.APITrimAddRequest{
		Source:  src,
		Name:    "clip.mp4",
		StartMs: 1000,
		EndMs:   3000,
	}, &item)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, filepath.Join(dir, "out", "clip.mp4"), item.Destination)

	require.Eventually(t, func() bool {
		var cur defs.APITrim
		httpRequest(t, hc, http.MethodGet, "http://localhost:9997/v1/trims/get/"+item.ID.String(), nil, &cur)
		return cur.Finished != nil
	}, 10*time.Second, 10*time.Millisecond)

	var list defs.APITrimList
	code = httpRequest(t, hc, http.MethodGet, "http://localhost:9997/v1/trims/list", nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, list.ItemCount)
	require.Equal(t, 1, list.PageCount)
	require.Equal(t, defs.APITrimStateCompleted, list.Items[0].State)
	require.Equal(t, float64(1), list.Items[0].Progress)

	code = httpRequest(t, hc, http.MethodPost,
		"http://localhost:9997/v1/trims/cancel/"+item.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, code)

	var outputs defs.APIOutputList
	code = httpRequest(t, hc, http.MethodGet, "http://localhost:9997/v1/outputs/list", nil, &outputs)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, outputs.ItemCount)
	require.Equal(t, "clip.mp4", outputs.Items[0].Name)
	require.Equal(t, list.Items[0].BytesWritten, outputs.Items[0].Size)

	var probe defs.APIProbe
	code = httpRequest(t, hc, http.MethodGet,
		"http://localhost:9997/v1/probe?path="+filepath.Join(dir, "out", "clip.mp4"), nil, &probe)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, probe.Tracks, 2)
	require.Equal(t, "video", probe.Tracks[0].Type)
	require.InDelta(t, 2000, probe.DurationMs, 34)
}

func TestErrors(t *testing.T) {
	dir := tempDir(t)

	a := newAPI(t, dir)
	err := a.Initialize()
	require.NoError(t, err)
	defer a.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	garbage := filepath.Join(dir, "garbage.mp4")
	err = os.WriteFile(garbage, []byte("not a media file"), 0o644)
	require.NoError(t, err)

	for _, ca := range []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{
			"add unknown field",
			http.MethodPost,
			"/v1/trims/add",
			map[string]any{"source": "a.mp4", "unknown": 1},
			http.StatusBadRequest,
		},
		{
			"add empty source",
			http.MethodPost,
			"/v1/trims/add",
			&defs.APITrimAddRequest{EndMs: 1000},
			http.StatusBadRequest,
		},
		{
			"add invalid name",
			http.MethodPost,
			"/v1/trims/add",
			&defs.APITrimAddRequest{Source: "a.mp4", Name: "../a.mp4", EndMs: 1000},
			http.StatusBadRequest,
		},
		{
			"get invalid id",
			http.MethodGet,
			"/v1/trims/get/invalid",
			nil,
			http.StatusBadRequest,
		},
		{
			"get missing",
			http.MethodGet,
			"/v1/trims/get/" + uuid.New().String(),
			nil,
			http.StatusNotFound,
		},
		{
			"cancel missing",
			http.MethodPost,
			"/v1/trims/cancel/" + uuid.New().String(),
			nil,
			http.StatusNotFound,
		},
		{
			"list invalid page",
			http.MethodGet,
			"/v1/trims/list?itemsPerPage=0",
			nil,
			http.StatusBadRequest,
		},
		{
			"probe missing",
			http.MethodGet,
			"/v1/probe?path=" + filepath.Join(dir, "missing.mp4"),
			nil,
			http.StatusNotFound,
		},
		{
			"probe unrecognized",
			http.MethodGet,
			"/v1/probe?path=" + garbage,
			nil,
			http.StatusBadRequest,
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var out defs.APIError
			code := httpRequest(t, hc, ca.method, "http://localhost:9997"+ca.path, ca.body, &out)
			require.Equal(t, ca.status, code)
			require.Equal(t, "error", out.Status)
			require.NotEmpty(t, out.Error)
		})
	}
}

func TestAuth(t *testing.T) {
	a := newAPI(t, tempDir(t))
	a.pauseAfterAuthError = time.Millisecond

	err := a.User.UnmarshalEnv("", "myuser")
	require.NoError(t, err)
	err = a.Pass.UnmarshalEnv("", "sha256:rl3rgi4NcZkpAEcacZnQ2VuOfJ0FxAqCRaKB/SwdZoQ=")
	require.NoError(t, err)

	err = a.Initialize()
	require.NoError(t, err)
	defer a.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	for _, ca := range []struct {
		name   string
		user   string
		pass   string
		status int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong credentials", "myuser", "wrong", http.StatusUnauthorized},
		{"valid credentials", "myuser", "testuser", http.StatusOK},
	} {
		t.Run(ca.name, func(t *testing.T) {
			req, err2 := http.NewRequest(http.MethodGet, "http://localhost:9997/v1/info", nil)
			require.NoError(t, err2)

			if ca.user != "" {
				req.SetBasicAuth(ca.user, ca.pass)
			}

			res, err2 := hc.Do(req)
			require.NoError(t, err2)
			defer res.Body.Close()

			require.Equal(t, ca.status, res.StatusCode)

			if ca.user == "" {
				require.Equal(t, `Basic realm="mediatrim"`, res.Header.Get("WWW-Authenticate"))
			}
		})
	}
}
