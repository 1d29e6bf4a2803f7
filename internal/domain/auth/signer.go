package auth

import (
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

const (
	claimSessionID     = "sid"
	claimName          = "name"
	claimPreferredName = "preferred_name"
	claimRole          = "role"
	claimStatus        = "status"
	claimDeviceID      = "device_id"
	claimTrustedDevice = "trusted_device"
	claimLastActivity  = "last_activity"
)

// SignSession encodes tok as an RS256 JWT with the active key
func (ks *KeyStore) SignSession(tok SessionToken) (string, error) {
	key, err := ks.GetActiveKey()
	if err != nil {
		return "", err
	}

	builder := jwt.NewBuilder().
		Subject(tok.UserID).
		Issuer(tok.Issuer).
		IssuedAt(tok.IssuedAt).
		Expiration(tok.ExpiresAt).
		Claim(claimSessionID, tok.SessionID).
		Claim(claimName, tok.Name).
		Claim(claimRole, tok.Role).
		Claim(claimStatus, tok.Status).
		Claim(claimTrustedDevice, tok.TrustedDevice).
		Claim(claimLastActivity, tok.LastActivity)

	if tok.PreferredName != "" {
		builder.Claim(claimPreferredName, tok.PreferredName)
	}
	if tok.DeviceID != "" {
		builder.Claim(claimDeviceID, tok.DeviceID)
	}

	token, err := builder.Build()
	if err != nil {
		return "", err
	}

	// The key ID is already set on the key, so it ends up in the header
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), key))
	if err != nil {
		return "", err
	}

	return string(signed), nil
}
