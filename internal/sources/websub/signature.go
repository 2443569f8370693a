package websub

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"net/http"
	"strings"

	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/samber/oops"
)

// VerifySignature checks the X-Hub-Signature-256 or X-Hub-Signature header
// of a content delivery against secret. An empty secret disables the check.
func VerifySignature(secret string, header http.Header, body []byte) error {
	if secret == "" {
		return nil
	}

	sig := header.Get("X-Hub-Signature-256")
	if sig == "" {
		sig = header.Get("X-Hub-Signature")
	}
	if sig == "" {
		return oops.Wrapf(errors.ErrInvalidSignature, "signature header missing")
	}

	method, digest, ok := strings.Cut(sig, "=")
	if !ok {
		return oops.With("signature", sig).Wrapf(errors.ErrInvalidSignature, "malformed signature")
	}

	var newHash func() hash.Hash
	switch strings.ToLower(method) {
	case "sha256":
		newHash = sha256.New
	case "sha1":
		newHash = sha1.New
	default:
		return oops.With("method", method).Wrapf(errors.ErrInvalidSignature, "unsupported signature method")
	}

	want, err := hex.DecodeString(digest)
	if err != nil {
		return oops.Wrapf(errors.ErrInvalidSignature, "signature is not hex: %v", err)
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return oops.With("method", method).Wrapf(errors.ErrInvalidSignature, "signature mismatch")
	}
	return nil
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
