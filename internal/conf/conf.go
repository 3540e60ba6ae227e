// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bluenviron/mediatrim/internal/conf/env"
	"github.com/bluenviron/mediatrim/internal/conf/yamlwrapper"
	"github.com/bluenviron/mediatrim/internal/logger"
)

// EnvPrefix is the prefix of environment variables that override the configuration.
const EnvPrefix = "MTRIM"

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

// Conf is a configuration.
type Conf struct {
	// General
	LogLevel        LogLevel        `json:"logLevel"`
	LogDestinations LogDestinations `json:"logDestinations"`
	LogStructured   bool            `json:"logStructured"`
	LogFile         string          `json:"logFile"`
	ReadTimeout     Duration        `json:"readTimeout"`
	WriteTimeout    Duration        `json:"writeTimeout"`

	// Control API
	API            bool       `json:"api"`
	APIAddress     string     `json:"apiAddress"`
	APIUser        Credential `json:"apiUser"`
	APIPass        Credential `json:"apiPass"`
	APIAllowOrigin string     `json:"apiAllowOrigin"`

	// Metrics
	Metrics        bool   `json:"metrics"`
	MetricsAddress string `json:"metricsAddress"`

	// Trimming
	OutputDirectory  string     `json:"outputDirectory"`
	OutputFilePrefix string     `json:"outputFilePrefix"`
	MinTrimDuration  Duration   `json:"minTrimDuration"`
	ProgressInterval Duration   `json:"progressInterval"`
	MaxSampleSize    StringSize `json:"maxSampleSize"`
	JobTimeout       Duration   `json:"jobTimeout"`
	JobHistorySize   int        `json:"jobHistorySize"`

	// Hooks
	RunOnTrimComplete string `json:"runOnTrimComplete"`
	RunOnTrimFail     string `json:"runOnTrimFail"`
}

func (conf *Conf) setDefaults() {
	// General
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "mediatrim.log"
	conf.ReadTimeout = Duration(10 * time.Second)
	conf.WriteTimeout = Duration(10 * time.Second)

	// Control API
	conf.APIAddress = "127.0.0.1:9997"
	conf.APIAllowOrigin = "*"

	// Metrics
	conf.MetricsAddress = "127.0.0.1:9998"

	// Trimming
	conf.OutputDirectory = "./trimmed"
	conf.OutputFilePrefix = "TRIM_"
	conf.MinTrimDuration = Duration(500 * time.Millisecond)
	conf.ProgressInterval = Duration(100 * time.Millisecond)
	conf.MaxSampleSize = 64 * 1024 * 1024
	conf.JobHistorySize = 100
}

// Load loads a Conf.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = env.Load(EnvPrefix, conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)

		// when the configuration file is not explicitly set,
		// it is optional.
		if fpath == "" {
			conf.setDefaults()
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Clone clones the configuration.
func (conf Conf) Clone() *Conf {
	enc, err := json.Marshal(conf)
	if err != nil {
		panic(err)
	}

	var dest Conf
	err = json.Unmarshal(enc, &dest)
	if err != nil {
		panic(err)
	}

	return &dest
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	// General

	if conf.ReadTimeout <= 0 {
		return fmt.Errorf("'readTimeout' must be greater than zero")
	}
	if conf.WriteTimeout <= 0 {
		return fmt.Errorf("'writeTimeout' must be greater than zero")
	}
	if len(conf.LogDestinations) == 0 {
		return fmt.Errorf("at least one log destination must be provided")
	}

	// Control API

	if conf.APIUser.IsEmpty() != conf.APIPass.IsEmpty() {
		return fmt.Errorf("'apiUser' and 'apiPass' must be both provided or both empty")
	}

	// Trimming

	if conf.OutputDirectory == "" {
		return fmt.Errorf("'outputDirectory' is empty")
	}
	if strings.ContainsAny(conf.OutputFilePrefix, `/\`) {
		return fmt.Errorf("'outputFilePrefix' must not contain path separators")
	}
	if conf.MinTrimDuration <= 0 {
		return fmt.Errorf("'minTrimDuration' must be greater than zero")
	}
	if conf.ProgressInterval < 0 {
		return fmt.Errorf("'progressInterval' must not be negative")
	}
	if conf.MaxSampleSize == 0 {
		return fmt.Errorf("'maxSampleSize' must be greater than zero")
	}
	if conf.JobTimeout < 0 {
		return fmt.Errorf("'jobTimeout' must not be negative")
	}
	if conf.JobHistorySize <= 0 {
		return fmt.Errorf("'jobHistorySize' must be greater than zero")
	}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (conf *Conf) UnmarshalJSON(b []byte) error {
	conf.setDefaults()

	type alias Conf
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	return d.Decode((*alias)(conf))
}
