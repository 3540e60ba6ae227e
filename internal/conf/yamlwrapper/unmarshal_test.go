package yamlwrapper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testConf struct {
	API             bool     `json:"api"`
	OutputDirectory string   `json:"outputDirectory"`
	JobHistorySize  int      `json:"jobHistorySize"`
	LogDestinations []string `json:"logDestinations"`
}

func TestUnmarshal(t *testing.T) {
	var c testConf
	err := Unmarshal([]byte("api: yes\n"+
		"outputDirectory: /var/trimmed\n"+
		"jobHistorySize: 20\n"+
		"logDestinations: [stdout, file]\n"), &c)
	require.NoError(t, err)
	require.Equal(t, testConf{
		API:             true,
		OutputDirectory: "/var/trimmed",
		JobHistorySize:  20,
		LogDestinations: []string{"stdout", "file"},
	}, c)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		buf  string
		err  string
	}{
		{
			"non-string key",
			"1: value\napi: yes\n",
			"non-string keys are not supported (1)",
		},
		{
			"unknown field",
			"api: yes\noutputFileName: a.mp4\n",
			"json: unknown field \"outputFileName\"",
		},
		{
			"nil slice",
			"logDestinations: null\n",
			"cannot set slice 'logDestinations' to nil",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var c testConf
			err := Unmarshal([]byte(ca.buf), &c)
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestUnmarshalDuplicateKey(t *testing.T) {
	var c testConf
	err := Unmarshal([]byte("api: yes\napi: no\n"), &c)
	require.Error(t, err)
}

func TestUnmarshalQuotedBool(t *testing.T) {
	type hooks struct {
		API               bool   `json:"api"`
		RunOnTrimComplete string `json:"runOnTrimComplete"`
	}

	var h hooks
	err := Unmarshal([]byte("api: yes\nrunOnTrimComplete: \"yes\"\n"), &h)
	require.NoError(t, err)
	require.Equal(t, hooks{API: true, RunOnTrimComplete: "yes"}, h)
}

func TestUnmarshalEmpty(t *testing.T) {
	c := testConf{OutputDirectory: "./trimmed"}
	err := Unmarshal([]byte(``), &c)
	require.NoError(t, err)
	require.Equal(t, "./trimmed", c.OutputDirectory)
}

func FuzzUnmarshal(f *testing.F) {
	f.Add([]byte("api: yes\n"))
	f.Fuzz(func(_ *testing.T, buf []byte) {
		var dest any
		Unmarshal(buf, &dest) //nolint:errcheck
	})
}
