package reconcile

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

const (
	// HeaderCallbackToken carries Xendit's shared callback token.
	HeaderCallbackToken = "X-Callback-Token"

	// HeaderSignature carries LemonSqueezy's HMAC-SHA256 hex signature of
	// the raw request body.
	HeaderSignature = "X-Signature"
)

// verifyCallbackToken checks the Xendit shared-token scheme.
// Constant-time comparison even though the token is not a signature; a
// timing oracle on the token would be just as damaging.
func verifyCallbackToken(headers http.Header, expected string) error {
	if expected == "" {
		return fmt.Errorf("%w: callback token not configured", ErrAuthenticationFailed)
	}
	got := headers.Get(HeaderCallbackToken)
	if got == "" {
		return fmt.Errorf("%w: missing %s header", ErrAuthenticationFailed, HeaderCallbackToken)
	}
	if !hmac.Equal([]byte(got), []byte(expected)) {
		return fmt.Errorf("%w: callback token mismatch", ErrAuthenticationFailed)
	}
	return nil
}

// verifySignature checks the LemonSqueezy HMAC-SHA256 scheme over the raw
// body. The signature must be computed over the exact bytes received;
// re-serializing the JSON first would break verification.
func verifySignature(body []byte, headers http.Header, secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: webhook secret not configured", ErrAuthenticationFailed)
	}
	got := headers.Get(HeaderSignature)
	if got == "" {
		return fmt.Errorf("%w: missing %s header", ErrAuthenticationFailed, HeaderSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(got)) {
		return fmt.Errorf("%w: signature mismatch", ErrAuthenticationFailed)
	}
	return nil
}
