package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

type KeyStore struct {
	ActiveKid string
	KeySet    jwk.Set
}

// LoadKeys reads private-<kid>.pem / public-<kid>.pem pairs from path
func LoadKeys(path, activeKid string) (*KeyStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ErrKeysDirectoryNotAccessible{Path: path, Err: err}
	}
	if !info.IsDir() {
		return nil, &ErrKeysPathNotDirectory{Path: path}
	}

	files, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys directory: %w", err)
	}

	keySet := jwk.NewSet()

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		fileName := file.Name()
		if !strings.HasPrefix(fileName, "private-") || filepath.Ext(fileName) != ".pem" {
			continue
		}

		kid := strings.TrimSuffix(strings.TrimPrefix(fileName, "private-"), ".pem")
		if kid == "" {
			continue
		}

		privData, err := os.ReadFile(filepath.Join(path, fileName))
		if err != nil {
			return nil, &ErrKeyFile{FileName: fileName, Reason: "read failed", Err: err}
		}

		priv, err := parseRSAPrivateKey(privData)
		if err != nil {
			return nil, &ErrKeyFile{FileName: fileName, Reason: "invalid private key", Err: err}
		}

		pubFileName := fmt.Sprintf("public-%s.pem", kid)
		pubData, err := os.ReadFile(filepath.Join(path, pubFileName))
		if err != nil {
			return nil, &ErrKeyFile{FileName: pubFileName, Reason: "read failed", Err: err}
		}

		pubBlock, _ := pem.Decode(pubData)
		if pubBlock == nil {
			return nil, &ErrKeyFile{FileName: pubFileName, Reason: "no PEM block"}
		}

		pub, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
		if err != nil {
			return nil, &ErrKeyFile{FileName: pubFileName, Reason: "invalid public key", Err: err}
		}

		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, &ErrKeyFile{FileName: pubFileName, Reason: "public key is not RSA"}
		}
		if !rsaPub.Equal(&priv.PublicKey) {
			return nil, &ErrKeyFile{FileName: pubFileName, Reason: "public key does not match private key"}
		}

		if err := addRSAKey(keySet, priv, kid); err != nil {
			return nil, err
		}
	}

	return &KeyStore{
		ActiveKid: activeKid,
		KeySet:    keySet,
	}, nil
}

// NewKeyStoreFromRSA builds a single-key store, used when no keys directory is configured
func NewKeyStoreFromRSA(priv *rsa.PrivateKey, kid string) (*KeyStore, error) {
	keySet := jwk.NewSet()
	if err := addRSAKey(keySet, priv, kid); err != nil {
		return nil, err
	}
	return &KeyStore{ActiveKid: kid, KeySet: keySet}, nil
}

func parseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block")
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return priv, nil
	}

	pkcs8Key, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err2 != nil {
		return nil, err
	}
	rsaKey, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

func addRSAKey(set jwk.Set, priv *rsa.PrivateKey, kid string) error {
	jwkKey, err := jwk.Import(priv)
	if err != nil {
		return fmt.Errorf("failed to convert private key to JWK: %w", err)
	}

	if err := jwkKey.Set(jwk.KeyIDKey, keyID(kid)); err != nil {
		return fmt.Errorf("failed to set key ID: %w", err)
	}

	if err := jwkKey.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return fmt.Errorf("failed to set algorithm: %w", err)
	}

	if err := set.AddKey(jwkKey); err != nil {
		return fmt.Errorf("failed to add key to set: %w", err)
	}
	return nil
}

func keyID(kid string) string {
	if strings.HasPrefix(kid, "key-") {
		return kid
	}
	return "key-" + kid
}

func (ks *KeyStore) GetActiveKey() (jwk.Key, error) {
	key, ok := ks.KeySet.LookupKeyID(keyID(ks.ActiveKid))
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

// JWKS returns the public half of every key
func (ks *KeyStore) JWKS() jwk.Set {
	publicSet, err := jwk.PublicSetOf(ks.KeySet)
	if err != nil {
		return jwk.NewSet()
	}
	return publicSet
}
