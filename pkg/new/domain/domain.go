package domain

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

type Secret struct {
	s string
}

func NewSecret(s string) (Secret, error) {
	if s == "" {
		return Secret{}, errors.New("secret can't be an empty string")
	}
	return Secret{s: s}, nil
}

func (s Secret) String() string {
	return s.s
}

func (s Secret) IsZero() bool {
	return s.s == ""
}

var signatureAlgorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// Sign returns a signature in the X-Hub-Signature format, e.g. "sha256=...".
func (s Secret) Sign(algorithm string, body []byte) (string, error) {
	newHash, ok := signatureAlgorithms[algorithm]
	if !ok {
		return "", fmt.Errorf("unsupported signature algorithm '%s'", algorithm)
	}
	m := hmac.New(newHash, []byte(s.s))
	m.Write(body)
	return algorithm + "=" + hex.EncodeToString(m.Sum(nil)), nil
}

// Verify checks a X-Hub-Signature header value against the body.
func (s Secret) Verify(signature string, body []byte) error {
	algorithm, digest, ok := strings.Cut(signature, "=")
	if !ok {
		return errors.New("malformed signature")
	}

	expected, err := s.Sign(algorithm, body)
	if err != nil {
		return err
	}

	// Hex digests are case insensitive.
	if !hmac.Equal([]byte(expected), []byte(algorithm+"="+strings.ToLower(digest))) {
		return errors.New("signature mismatch")
	}
	return nil
}
