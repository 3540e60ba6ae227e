package conf

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/matthewhartstonge/argon2"
)

var (
	rePlainCredential = regexp.MustCompile(`^[a-zA-Z0-9!\$\(\)\*\+\.;<=>\[\]\^_\-\{\}@#&]+$`)
	reBase64          = regexp.MustCompile(`^sha256:[a-zA-Z0-9\+/=]+$`)
)

const plainCredentialSupportedChars = "A-Z,0-9,!,$,(,),*,+,.,;,<,=,>,[,],^,_,-,\",\",@,#,&"

// Credential is a parameter that is used as username or password.
// It can be plain, a sha256 hash or an argon2 hash.
type Credential struct {
	value string
}

// MarshalJSON implements json.Marshaler.
func (d Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Credential) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*d = Credential{
		value: in,
	}

	return d.validate()
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *Credential) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}

// IsEmpty returns true if the credential is not configured.
func (d Credential) IsEmpty() bool {
	return d.value == ""
}

func (d Credential) isSha256() bool {
	return strings.HasPrefix(d.value, "sha256:")
}

func (d Credential) isArgon2() bool {
	return strings.HasPrefix(d.value, "argon2:")
}

func sha256Base64(in string) string {
	h := sha256.New()
	h.Write([]byte(in))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Check returns true if the given value matches the credential.
func (d Credential) Check(guess string) bool {
	switch {
	case d.isSha256():
		return d.value[len("sha256:"):] == sha256Base64(guess)

	case d.isArgon2():
		ok, err := argon2.VerifyEncoded([]byte(guess), []byte(d.value[len("argon2:"):]))
		return ok && err == nil

	case d.IsEmpty():
		// when no credential is set, any value is valid
		return true
	}

	return d.value == guess
}

func (d Credential) validate() error {
	switch {
	case d.IsEmpty():
		return nil

	case d.isSha256():
		if !reBase64.MatchString(d.value) {
			return fmt.Errorf("credential contains unsupported characters, sha256 hash must be base64 encoded")
		}

	case d.isArgon2():
		_, err := argon2.Decode([]byte(d.value[len("argon2:"):]))
		if err != nil {
			return fmt.Errorf("invalid argon2 hash: %w", err)
		}

	default:
		if !rePlainCredential.MatchString(d.value) {
			return fmt.Errorf("credential contains unsupported characters. Supported are: %s",
				plainCredentialSupportedChars)
		}
	}

	return nil
}
