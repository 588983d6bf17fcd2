package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ValidateSignature checks the x-line-signature header against the raw
// request body. The signature is the base64 encoded HMAC-SHA256 digest of
// the body keyed by the channel secret.
func ValidateSignature(rawBody []byte, signature, channelSecret string) bool {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature for a raw body. Used by tests to build valid
// webhook requests.
func Sign(rawBody []byte, channelSecret string) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(rawBody)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
