package conf

import (
	"encoding/json"
	"fmt"

	"github.com/bluenviron/mediatrim/internal/logger"
)

var logLevelNames = map[LogLevel]string{
	LogLevel(logger.Error): "error",
	LogLevel(logger.Warn):  "warn",
	LogLevel(logger.Info):  "info",
	LogLevel(logger.Debug): "debug",
}

// LogLevel is the logLevel parameter.
type LogLevel logger.Level

// MarshalJSON implements json.Marshaler.
func (d LogLevel) MarshalJSON() ([]byte, error) {
	out, ok := logLevelNames[d]
	if !ok {
		return nil, fmt.Errorf("invalid log level: %v", d)
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *LogLevel) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	for level, name := range logLevelNames {
		if name == in {
			*d = level
			return nil
		}
	}

	return fmt.Errorf("invalid log level: '%s'", in)
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *LogLevel) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
