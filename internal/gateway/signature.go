package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// signatureHeader carries the payload signature on Meta webhook deliveries.
const signatureHeader = "X-Hub-Signature-256"

// ValidSignature checks an X-Hub-Signature-256 header value against the
// request body. The header format is "sha256=<hex digest>". An empty app
// secret disables verification (local development).
func ValidSignature(appSecret string, body []byte, header string) bool {
	if appSecret == "" {
		return true
	}
	digest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return safeEqual(digest, expected)
}

// safeEqual performs a constant-time string comparison to prevent timing
// attacks. It avoids early-return on length mismatch to prevent leaking
// secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
