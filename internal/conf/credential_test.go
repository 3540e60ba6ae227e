package conf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialCheck(t *testing.T) {
	for _, ca := range []struct {
		name  string
		value string
		right string
		wrong string
	}{
		{
			"plain",
			"password",
			"password",
			"wrongpassword",
		},
		{
			"sha256",
			"sha256:rl3rgi4NcZkpAEcacZnQ2VuOfJ0FxAqCRaKB/SwdZoQ=",
			"testuser",
			"notestuser",
		},
		{
			"argon2",
			"argon2:$argon2id$v=19$m=4096,t=3,p=1$MTIzNDU2Nzg$Ux/LWeTgJQPyfMMJo1myR64+o8rALHoPmlE1i/TR+58",
			"testuser",
			"notestuser",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var cred Credential
			err := cred.UnmarshalJSON([]byte(`"` + ca.value + `"`))
			require.NoError(t, err)
			require.True(t, cred.Check(ca.right))
			require.False(t, cred.Check(ca.wrong))
		})
	}
}

func TestCredentialEmptyAcceptsAnything(t *testing.T) {
	var cred Credential
	require.True(t, cred.IsEmpty())
	require.True(t, cred.Check("whatever"))
}

func TestCredentialMarshal(t *testing.T) {
	var cred Credential
	err := cred.UnmarshalEnv("", "myuser")
	require.NoError(t, err)

	enc, err := cred.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"myuser"`, string(enc))
}

func TestCredentialValidate(t *testing.T) {
	for _, ca := range []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"empty", "", false},
		{"plain valid", "validPlain123", false},
		{"plain invalid", "invalid/Plain", true},
		{"sha256 valid", "sha256:validBase64EncodedHash==", false},
		{"sha256 invalid", "sha256:inval*idBase64", true},
		{
			"argon2 valid",
			"argon2:$argon2id$v=19$m=4096,t=3,p=1$MTIzNDU2Nzg$zarsL19s86GzUWlAkvwt4gJBFuU/A9CVuCjNI4fksow",
			false,
		},
		{"argon2 invalid", "argon2:invalid", true},
	} {
		t.Run(ca.name, func(t *testing.T) {
			err := Credential{value: ca.value}.validate()
			if ca.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
