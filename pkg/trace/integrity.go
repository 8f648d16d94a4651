package trace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrIntegrity indicates a trace file whose signature does not match its contents
var ErrIntegrity = errors.New("HMAC verification failed: trace may have been tampered with")

// SignatureSuffix is appended to a trace path to locate its signature sidecar
const SignatureSuffix = ".sig"

// CalculateHMAC generates a hex HMAC-SHA256 for the given data
func CalculateHMAC(data []byte, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC checks if the HMAC for the given data matches the expected value
func VerifyHMAC(data []byte, key []byte, expectedHMAC string) bool {
	actual := CalculateHMAC(data, key)
	return hmac.Equal([]byte(actual), []byte(strings.TrimSpace(expectedHMAC)))
}
