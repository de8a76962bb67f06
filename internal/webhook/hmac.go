package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// errVerification is the only error callers see; details stay in logs.
var errVerification = errors.New("webhook verification failed")

const sigPrefix = "sha256="

func mac(body []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}

// verifyHMACSignature accepts "sha256=<hex>" or bare hex. An empty secret
// rejects everything.
func verifyHMACSignature(body []byte, signature, secret string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), sigPrefix))
	if secret == "" || err != nil || len(sig) == 0 || !hmac.Equal(sig, mac(body, secret)) {
		return errVerification
	}
	return nil
}

// Sign returns the signature a producer should send for body.
func Sign(body []byte, secret string) string {
	return sigPrefix + hex.EncodeToString(mac(body, secret))
}
