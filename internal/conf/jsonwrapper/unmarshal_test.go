package jsonwrapper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Source  string `json:"source"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
}

func TestDecode(t *testing.T) {
	var req testRequest
	err := Decode(strings.NewReader(`{"source": "/video.mp4", "startMs": 1000, "endMs": 3000}`), &req)
	require.NoError(t, err)
	require.Equal(t, testRequest{
		Source:  "/video.mp4",
		StartMs: 1000,
		EndMs:   3000,
	}, req)
}

func TestDecodeErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		body string
		err  string
	}{
		{
			"unknown field",
			`{"source": "/video.mp4", "speed": 2}`,
			"json: unknown field \"speed\"",
		},
		{
			"trailing data",
			`{"source": "/video.mp4"} {"source": "/other.mp4"}`,
			"unexpected data after JSON value",
		},
		{
			"wrong type",
			`{"startMs": "one"}`,
			"cannot unmarshal string",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var req testRequest
			err := Decode(strings.NewReader(ca.body), &req)
			require.ErrorContains(t, err, ca.err)
		})
	}
}

func TestUnmarshalReplacesSlices(t *testing.T) {
	type outputs struct {
		Destinations []string `json:"destinations"`
		Names        []struct {
			Name string `json:"name"`
			Size uint64 `json:"size"`
		} `json:"names"`
	}

	var o outputs
	o.Destinations = []string{"stdout", "file", "syslog"}
	o.Names = append(o.Names, struct {
		Name string `json:"name"`
		Size uint64 `json:"size"`
	}{"a.mp4", 1234})

	err := Unmarshal([]byte(`{"destinations": ["file"], "names": [{"name": "b.mp4"}]}`), &o)
	require.NoError(t, err)
	require.Equal(t, []string{"file"}, o.Destinations)
	require.Len(t, o.Names, 1)
	require.Equal(t, "b.mp4", o.Names[0].Name)
	require.Equal(t, uint64(0), o.Names[0].Size)
}

func TestUnmarshalNilSlice(t *testing.T) {
	type logConf struct {
		LogDestinations []string `json:"logDestinations"`
	}

	var c logConf
	err := Unmarshal([]byte(`{"logDestinations": null}`), &c)
	require.EqualError(t, err, "cannot set slice 'logDestinations' to nil")

	var s []string
	err = Unmarshal([]byte(`null`), &s)
	require.EqualError(t, err, "cannot set slice to nil")
}
