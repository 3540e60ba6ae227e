package conf

import (
	"encoding/json"

	"code.cloudfoundry.org/bytefmt"

	"github.com/bluenviron/mediatrim/internal/conf/jsonwrapper"
)

// StringSize is a size in bytes that is read and written as a string, like "64M".
type StringSize uint64

// String implements fmt.Stringer.
func (s StringSize) String() string {
	return bytefmt.ByteSize(uint64(s))
}

// MarshalJSON implements json.Marshaler.
func (s StringSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringSize) UnmarshalJSON(b []byte) error {
	var in string
	err := jsonwrapper.Unmarshal(b, &in)
	if err != nil {
		return err
	}

	return s.UnmarshalEnv("", in)
}

// UnmarshalEnv implements env.Unmarshaler.
func (s *StringSize) UnmarshalEnv(_ string, v string) error {
	tmp, err := bytefmt.ToBytes(v)
	if err != nil {
		return err
	}

	*s = StringSize(tmp)
	return nil
}
