package conf

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/bluenviron/mediatrim/internal/conf/jsonwrapper"
)

const day = 24 * time.Hour

var reDays = regexp.MustCompile("^(-?[0-9]+)d")

// Duration is a duration that is read and written as a string,
// like "500ms", "1h30m" or "2d12h".
type Duration time.Duration

// String implements fmt.Stringer.
func (d Duration) String() string {
	v := time.Duration(d)

	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	days, rest := v/day, v%day

	switch {
	case days == 0:
		return sign + rest.String()

	case rest == 0:
		return sign + strconv.FormatInt(int64(days), 10) + "d"

	default:
		return sign + strconv.FormatInt(int64(days), 10) + "d" + rest.String()
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	var days int64
	negative := false

	if m := reDays.FindStringSubmatch(s); m != nil {
		days, _ = strconv.ParseInt(m[1], 10, 64)
		if days < 0 {
			negative = true
			days = -days
		}
		s = s[len(m[0]):]
	}

	var v time.Duration

	if s != "" {
		var err error
		v, err = time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
	}

	v += time.Duration(days) * day

	if negative {
		v = -v
	}

	return v, nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var in string
	err := jsonwrapper.Unmarshal(b, &in)
	if err != nil {
		return err
	}

	v, err := parseDuration(in)
	if err != nil {
		return err
	}

	*d = Duration(v)
	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *Duration) UnmarshalEnv(_ string, v string) error {
	tmp, err := parseDuration(v)
	if err != nil {
		return err
	}

	*d = Duration(tmp)
	return nil
}
