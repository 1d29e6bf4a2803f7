package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyPair(t *testing.T, dir, kid string, priv *rsa.PrivateKey, pub *rsa.PublicKey) {
	t.Helper()

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "private-"+kid+".pem"), privPEM, 0o600))

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "public-"+kid+".pem"), pubPEM, 0o644))
}

func TestLoadKeys(t *testing.T) {
	priv := testPrivateKey(t)

	t.Run("loads key pair", func(t *testing.T) {
		dir := t.TempDir()
		writeKeyPair(t, dir, "2025", priv, &priv.PublicKey)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))

		ks, err := LoadKeys(dir, "2025")
		require.NoError(t, err)
		assert.Equal(t, 1, ks.KeySet.Len())

		key, err := ks.GetActiveKey()
		require.NoError(t, err)
		kid, ok := key.KeyID()
		assert.True(t, ok)
		assert.Equal(t, "key-2025", kid)
	})

	t.Run("missing public key", func(t *testing.T) {
		dir := t.TempDir()
		writeKeyPair(t, dir, "a", priv, &priv.PublicKey)
		require.NoError(t, os.Remove(filepath.Join(dir, "public-a.pem")))

		_, err := LoadKeys(dir, "a")
		var keyErr *ErrKeyFile
		assert.True(t, errors.As(err, &keyErr))
		assert.Equal(t, "public-a.pem", keyErr.FileName)
	})

	t.Run("mismatched public key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		dir := t.TempDir()
		writeKeyPair(t, dir, "a", priv, &other.PublicKey)

		_, err = LoadKeys(dir, "a")
		assert.ErrorContains(t, err, "does not match")
	})

	t.Run("path is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "keys")
		require.NoError(t, os.WriteFile(file, nil, 0o644))

		_, err := LoadKeys(file, "a")
		var notDir *ErrKeysPathNotDirectory
		assert.True(t, errors.As(err, &notDir))
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadKeys(filepath.Join(t.TempDir(), "nope"), "a")
		var notAccessible *ErrKeysDirectoryNotAccessible
		assert.True(t, errors.As(err, &notAccessible))
	})

	t.Run("unknown active key", func(t *testing.T) {
		dir := t.TempDir()
		writeKeyPair(t, dir, "a", priv, &priv.PublicKey)

		ks, err := LoadKeys(dir, "b")
		require.NoError(t, err)
		_, err = ks.GetActiveKey()
		assert.ErrorIs(t, err, ErrUnknownKey)
	})
}

func TestKeyStore_JWKSIsPublic(t *testing.T) {
	ks := newTestKeyStore(t)
	set := ks.JWKS()
	require.Equal(t, 1, set.Len())

	key, ok := set.Key(0)
	require.True(t, ok)
	_, isPrivate := key.(jwk.RSAPrivateKey)
	assert.False(t, isPrivate)
}

func TestKeyStore_SignAndVerifySession(t *testing.T) {
	ks := newTestKeyStore(t)
	issuer := newTestIssuer()
	u := approvedUser()
	preferred := "Ada"
	u.PreferredName = &preferred
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	tok := issuer.Issue(u, DeviceClaim{DeviceID: "laptop", Trusted: true}, now)

	signed, err := ks.SignSession(tok)
	require.NoError(t, err)

	t.Run("round trip keeps every claim", func(t *testing.T) {
		got, err := ks.VerifySession(signed, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, tok, got)
	})

	t.Run("past max-age is rejected", func(t *testing.T) {
		_, err := ks.VerifySession(signed, now.Add(31*time.Minute))
		assert.ErrorIs(t, err, ErrTokenMaxAge)
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		parts := strings.Split(signed, ".")
		require.Len(t, parts, 3)
		parts[1] = parts[1][:len(parts[1])-2] + "AA"
		_, err := ks.VerifySession(strings.Join(parts, "."), now)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("foreign key is rejected", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		foreign, err := NewKeyStoreFromRSA(other, "test")
		require.NoError(t, err)

		forged, err := foreign.SignSession(tok)
		require.NoError(t, err)

		_, err = ks.VerifySession(forged, now)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := ks.VerifySession("not-a-token", now)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
