package reconcile

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyCallbackToken(t *testing.T) {
	t.Parallel()

	t.Run("accepts matching token", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set(HeaderCallbackToken, "secret-token")
		assert.NoError(t, verifyCallbackToken(h, "secret-token"))
	})

	t.Run("rejects mismatched token", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set(HeaderCallbackToken, "wrong")
		assert.ErrorIs(t, verifyCallbackToken(h, "secret-token"), ErrAuthenticationFailed)
	})

	t.Run("rejects missing header", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, verifyCallbackToken(http.Header{}, "secret-token"), ErrAuthenticationFailed)
	})

	t.Run("rejects when token not configured", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set(HeaderCallbackToken, "anything")
		assert.ErrorIs(t, verifyCallbackToken(h, ""), ErrAuthenticationFailed)
	})
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"meta":{"event_name":"order_created"}}`)

	t.Run("accepts valid signature", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set(HeaderSignature, signBody("whsec", body))
		assert.NoError(t, verifySignature(body, h, "whsec"))
	})

	t.Run("rejects signature of different body", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set(HeaderSignature, signBody("whsec", []byte("tampered")))
		assert.ErrorIs(t, verifySignature(body, h, "whsec"), ErrAuthenticationFailed)
	})

	t.Run("rejects signature with wrong secret", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set(HeaderSignature, signBody("other", body))
		assert.ErrorIs(t, verifySignature(body, h, "whsec"), ErrAuthenticationFailed)
	})

	t.Run("rejects missing header", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, verifySignature(body, http.Header{}, "whsec"), ErrAuthenticationFailed)
	})

	t.Run("rejects when secret not configured", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set(HeaderSignature, signBody("whsec", body))
		assert.ErrorIs(t, verifySignature(body, h, ""), ErrAuthenticationFailed)
	})
}
