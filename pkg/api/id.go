package api

import (
	"crypto/rand"
	"strings"
)

// Resource ID prefixes. The prefix is followed by idLength alphanumerics.
const (
	AuthenticatorIDPrefix = "authn_"
	SettingIDPrefix       = "set_"

	idLength = 24
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func NewAuthenticatorID() string { return newID(AuthenticatorIDPrefix) }

func NewSettingID() string { return newID(SettingIDPrefix) }

func ValidateAuthenticatorID(id string) bool { return hasIDFormat(AuthenticatorIDPrefix, id) }

func ValidateSettingID(id string) bool { return hasIDFormat(SettingIDPrefix, id) }

// newID draws random bytes and rejects values that would bias the
// alphabet (256 is not a multiple of 62).
func newID(prefix string) string {
	const limit = 256 - 256%len(alphabet)

	out := make([]byte, 0, idLength)
	buf := make([]byte, idLength*2)
	for len(out) < idLength {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		for _, b := range buf {
			if int(b) < limit && len(out) < idLength {
				out = append(out, alphabet[int(b)%len(alphabet)])
			}
		}
	}
	return prefix + string(out)
}

func hasIDFormat(prefix, id string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || len(rest) != idLength {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if strings.IndexByte(alphabet, rest[i]) < 0 {
			return false
		}
	}
	return true
}
