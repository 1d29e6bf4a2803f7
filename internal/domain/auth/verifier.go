package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// VerifySession checks the signature and the absolute expiry against now.
// The inactivity rule is left to the caller.
func (ks *KeyStore) VerifySession(raw string, now time.Time) (SessionToken, error) {
	verified, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKeySet(ks.KeySet, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(false),
	)
	if err != nil {
		return SessionToken{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	tok := SessionToken{
		SessionID:     claimString(verified, claimSessionID),
		Name:          claimString(verified, claimName),
		PreferredName: claimString(verified, claimPreferredName),
		Role:          claimString(verified, claimRole),
		Status:        claimString(verified, claimStatus),
		DeviceID:      claimString(verified, claimDeviceID),
		TrustedDevice: claimBool(verified, claimTrustedDevice),
		LastActivity:  claimInt64(verified, claimLastActivity),
	}
	tok.UserID, _ = verified.Subject()
	tok.Issuer, _ = verified.Issuer()
	if iat, ok := verified.IssuedAt(); ok {
		tok.IssuedAt = iat.UTC()
	}
	if exp, ok := verified.Expiration(); ok {
		tok.ExpiresAt = exp.UTC()
	}

	if tok.UserID == "" || tok.SessionID == "" || tok.LastActivity == 0 {
		return SessionToken{}, fmt.Errorf("%w: missing session claims", ErrInvalidToken)
	}
	if tok.ExpiresAt.IsZero() || now.After(tok.ExpiresAt) {
		return SessionToken{}, ErrTokenMaxAge
	}

	return tok, nil
}

func claimString(t jwt.Token, name string) string {
	var v any
	if t.Get(name, &v) != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func claimBool(t jwt.Token, name string) bool {
	var v any
	if t.Get(name, &v) != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func claimInt64(t jwt.Token, name string) int64 {
	var v any
	if t.Get(name, &v) != nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
