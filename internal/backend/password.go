package backend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// passwordSuffix guarantees every character class of the password policy.
const passwordSuffix = "#Q7x"

// DerivePassword returns the backend password of a gateway user. Gateway accounts never see
// their backend credentials; the gateway recomputes them from secret on every login.
func DerivePassword(secret, username string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(username))))
	return hex.EncodeToString(mac.Sum(nil))[:32] + passwordSuffix
}
