package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/domain/auth"
)

// Command manages the RSA key pairs that sign session tokens
type Command struct {
	Out io.Writer
}

func (c *Command) Name() string {
	return "keys"
}

func (c *Command) Description() string {
	return "Manage session signing keys (generate, list)"
}

func (c *Command) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Command) Run(args []string) error {
	if len(args) < 1 {
		c.printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "generate":
		return c.runGenerate(args[1:])
	case "list":
		return c.runList(args[1:])
	default:
		c.printUsage()
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func (c *Command) printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: alumnet-cli keys <subcommand> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  generate              Generate a new RSA key pair\n")
	fmt.Fprintf(os.Stderr, "    -kid <id>           Key ID (required)\n")
	fmt.Fprintf(os.Stderr, "    -bits <size>        Key size: 2048, 3072, or 4096 (default: 2048)\n")
	fmt.Fprintf(os.Stderr, "    -path <dir>         Custom keys directory (overrides config)\n")
	fmt.Fprintf(os.Stderr, "  list                  List all available keys\n")
	fmt.Fprintf(os.Stderr, "    -path <dir>         Custom keys directory (overrides config)\n")
}

func (c *Command) runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	kid := fs.String("kid", "", "Key ID (required)")
	bits := fs.Int("bits", 2048, "Key size in bits (2048, 3072, or 4096)")
	customPath := fs.String("path", "", "Custom keys directory path (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *kid == "" {
		return fmt.Errorf("key ID is required")
	}
	if strings.ContainsAny(*kid, `/\`) {
		return fmt.Errorf("key ID must not contain path separators")
	}
	if *bits != 2048 && *bits != 3072 && *bits != 4096 {
		return fmt.Errorf("key size must be 2048, 3072, or 4096")
	}

	keysPath, _, err := resolvePath(*customPath)
	if err != nil {
		return err
	}

	return generateKey(c.out(), keysPath, *kid, *bits)
}

func (c *Command) runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	customPath := fs.String("path", "", "Custom keys directory path (overrides config)")
	active := fs.String("active", "", "Active key ID (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	keysPath, activeKID, err := resolvePath(*customPath)
	if err != nil {
		return err
	}
	if *active != "" {
		activeKID = *active
	}

	return listKeys(c.out(), keysPath, activeKID)
}

// resolvePath returns the keys directory and active key ID. The config file
// is only required when no explicit path is given.
func resolvePath(customPath string) (string, string, error) {
	envConfig := config.LoadEnv()
	cfg, err := config.Load(envConfig.ConfigPath)
	if err != nil {
		if customPath != "" {
			return customPath, "", nil
		}
		return "", "", fmt.Errorf("failed to load configuration: %w", err)
	}

	keysPath := cfg.Auth.KeysPath
	if customPath != "" {
		keysPath = customPath
	}
	if keysPath == "" {
		return "", "", fmt.Errorf("no keys directory: set auth.keys_path or pass -path")
	}
	return keysPath, cfg.Auth.ActiveKID, nil
}

func generateKey(w io.Writer, keysPath, kid string, bits int) error {
	if err := os.MkdirAll(keysPath, 0700); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}

	privPath := filepath.Join(keysPath, fmt.Sprintf("private-%s.pem", kid))
	pubPath := filepath.Join(keysPath, fmt.Sprintf("public-%s.pem", kid))

	if _, err := os.Stat(privPath); err == nil {
		return fmt.Errorf("key with ID %s already exists at %s", kid, privPath)
	}

	fmt.Fprintf(w, "Generating %d-bit RSA key pair...\n", bits)
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privateKeyPEM := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	if err := writePEM(privPath, privateKeyPEM, 0600); err != nil {
		return err
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return err
	}
	publicKeyPEM := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	}
	if err := writePEM(pubPath, publicKeyPEM, 0644); err != nil {
		// an orphaned private key would fail LoadKeys
		_ = os.Remove(privPath)
		return err
	}

	fmt.Fprintf(w, "Key pair generated successfully\n")
	fmt.Fprintf(w, "  Key ID: %s\n", kid)
	fmt.Fprintf(w, "  Set auth.active_kid to %s to sign with it\n", kid)
	return nil
}

func writePEM(path string, block *pem.Block, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func listKeys(w io.Writer, keysPath, activeKID string) error {
	keyStore, err := auth.LoadKeys(keysPath, activeKID)
	if err != nil {
		return fmt.Errorf("failed to load keys: %w", err)
	}

	keySet := keyStore.JWKS()
	if keySet.Len() == 0 {
		fmt.Fprintf(w, "No keys found in %s\n", keysPath)
		return nil
	}

	fmt.Fprintf(w, "Keys in %s:\n\n", keysPath)
	normalizedActiveKID := activeKID
	if !strings.HasPrefix(normalizedActiveKID, "key-") {
		normalizedActiveKID = "key-" + normalizedActiveKID
	}

	for i := 0; i < keySet.Len(); i++ {
		key, ok := keySet.Key(i)
		if !ok {
			continue
		}

		kid, _ := key.KeyID()
		active := ""
		if kid == normalizedActiveKID {
			active = " (ACTIVE)"
		}
		fileID := strings.TrimPrefix(kid, "key-")

		var rawKey any
		if err := jwk.Export(key, &rawKey); err != nil {
			fmt.Fprintf(w, "  %s: skipped (export failed: %v)\n", kid, err)
			continue
		}
		rsaKey, ok := rawKey.(*rsa.PublicKey)
		if !ok {
			fmt.Fprintf(w, "  %s: skipped (not an RSA key)\n", kid)
			continue
		}

		fmt.Fprintf(w, "  %s%s\n", kid, active)
		fmt.Fprintf(w, "    Key size: %d bits\n", rsaKey.N.BitLen())
		fmt.Fprintf(w, "    Private:  private-%s.pem\n", fileID)
		fmt.Fprintf(w, "    Public:   public-%s.pem\n", fileID)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Active KID: %s\n", activeKID)
	return nil
}
