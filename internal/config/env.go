package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvironmentType is the deployment flavour selected by ENVIRONMENT
type EnvironmentType string

const (
	EnvironmentDevelopment EnvironmentType = "development"
	EnvironmentProduction  EnvironmentType = "production"
)

func (e EnvironmentType) String() string {
	return string(e)
}

func (e EnvironmentType) IsValid() bool {
	return e == EnvironmentDevelopment || e == EnvironmentProduction
}

// ErrPrivateKeyRequired is returned in production when no signing key is supplied
var ErrPrivateKeyRequired = errors.New("private key is required in production environment")

// Environment holds the process-level settings that do not belong in config.yaml.
// PrivateKey is a PEM block or a "file:<path>" reference built from PRIVATE_KEY_FILE.
type Environment struct {
	Environment EnvironmentType `env:"ENVIRONMENT"`
	ConfigPath  string          `env:"CONFIG_PATH"`
	PrivateKey  string          `env:"PRIVATE_KEY"`
	APIBaseURL  string          `env:"ALUMNET_API_URL"`
}

// LoadEnv reads .env when present, then the process environment
func LoadEnv() *Environment {
	// godotenv never overrides variables that are already set
	_ = godotenv.Load()

	env := EnvironmentType(strings.ToLower(strings.TrimSpace(getEnv("ENVIRONMENT", ""))))
	if !env.IsValid() {
		env = EnvironmentDevelopment
	}

	privateKey := getEnv("PRIVATE_KEY", "")
	if path := getEnv("PRIVATE_KEY_FILE", ""); privateKey == "" && path != "" {
		privateKey = "file:" + path
	}

	return &Environment{
		Environment: env,
		ConfigPath:  getEnv("CONFIG_PATH", "config.yaml"),
		PrivateKey:  privateKey,
		APIBaseURL:  strings.TrimRight(getEnv("ALUMNET_API_URL", "http://localhost:8000"), "/"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// LoadRSAPrivateKey resolves the signing key from source, which is a PEM
// block (literal "\n" sequences allowed, as single-line .env values need),
// a "file:<path>" reference, or empty. An empty source yields a fresh
// 2048-bit key in development and ErrPrivateKeyRequired in production.
func LoadRSAPrivateKey(source string, env EnvironmentType) (*rsa.PrivateKey, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		if env == EnvironmentProduction {
			return nil, ErrPrivateKeyRequired
		}
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("failed to generate private key: %w", err)
		}
		return key, nil
	}

	data := []byte(strings.ReplaceAll(source, `\n`, "\n"))
	if path, ok := strings.CutPrefix(source, "file:"); ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		data = raw
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS8 private key: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
