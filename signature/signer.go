package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/goliatone/go-messaging/core"
)

// Sign returns the lowercase hex HMAC-SHA256 of the canonical form of payload.
func Sign(payload any, secret string) (string, error) {
	if secret == "" {
		return "", core.NewError(core.KindSignatureComputation, "signature: secret is required", http.StatusInternalServerError, nil)
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", core.WrapError(err, core.KindSignatureComputation, "signature: payload is not serializable", http.StatusInternalServerError, nil)
	}
	return SignBytes(canonical, secret), nil
}

// SignBytes signs raw exactly as given.
func SignBytes(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks candidate against the signature of raw. Every mismatch, including
// an empty or malformed candidate, reports false with a signature mismatch error.
func Verify(raw []byte, candidate string, secret string) (bool, error) {
	if secret == "" {
		return false, core.NewError(core.KindSignatureComputation, "signature: secret is required", http.StatusInternalServerError, nil)
	}
	expected := SignBytes(raw, secret)
	if !hmac.Equal([]byte(expected), []byte(candidate)) {
		return false, core.NewError(core.KindSignatureMismatch, "Invalid signature.", http.StatusUnauthorized, nil)
	}
	return true, nil
}

// Signer binds a secret to Sign and Verify.
type Signer struct {
	secret string
}

func NewSigner(secret string) Signer {
	return Signer{secret: secret}
}

func (s Signer) Sign(payload any) (string, error) {
	return Sign(payload, s.secret)
}

func (s Signer) SignBytes(raw []byte) string {
	return SignBytes(raw, s.secret)
}

func (s Signer) Verify(raw []byte, candidate string) (bool, error) {
	return Verify(raw, candidate, s.secret)
}

// Configured reports whether the signer holds a secret.
func (s Signer) Configured() bool {
	return s.secret != ""
}
