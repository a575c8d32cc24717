package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)

	assert.True(t, ValidSignature("secret", body, sign("secret", body)))
	assert.False(t, ValidSignature("secret", body, sign("wrong", body)))
	assert.False(t, ValidSignature("secret", body, "sha256=deadbeef"))
	assert.False(t, ValidSignature("secret", body, ""), "missing header rejected")
	assert.False(t, ValidSignature("secret", body, hex.EncodeToString([]byte("x"))), "prefix required")

	// Empty secret disables verification for local development.
	assert.True(t, ValidSignature("", body, ""))
}

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("abc", "abc"))
	assert.False(t, safeEqual("abc", "abd"))
	assert.False(t, safeEqual("abc", "abcd"))
	assert.False(t, safeEqual("", "a"))
	assert.True(t, safeEqual("", ""))
}
