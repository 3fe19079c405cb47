package keys

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

const (
	EnvPrivateKey           = "WALLET_PRIVATE_KEY"
	EnvPrivateKeyFile       = "WALLET_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "WALLET_KEYSTORE_PATH"
	EnvKeystorePassword     = "WALLET_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "WALLET_KEYSTORE_PASSWORD_FILE"

	SourceAuto     = "auto"
	SourceEnv      = "env"
	SourceFile     = "file"
	SourceKeystore = "keystore"

	defaultPrivateKeyRelativePath = "wallet/key.hex"
)

// SourceConfig selects where the software key is loaded from. Empty fields
// are filled from the WALLET_* environment.
type SourceConfig struct {
	Source   string
	Override string

	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

// SourceConfigFromEnv reads key locations from the environment and applies
// the source filter. An explicit override key wins over every other source.
func SourceConfigFromEnv(source, override string) (SourceConfig, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = SourceAuto
	}
	cfg := SourceConfig{
		Source:               source,
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
	}
	if cfg.PrivateKeyFile == "" {
		cfg.PrivateKeyFile = DefaultPrivateKeyFile()
	}

	switch source {
	case SourceAuto:
	case SourceEnv:
		cfg.PrivateKeyFile, cfg.KeystorePath = "", ""
		cfg.KeystorePassword, cfg.KeystorePasswordFile = "", ""
	case SourceFile:
		cfg.PrivateKeyHex, cfg.KeystorePath = "", ""
		cfg.KeystorePassword, cfg.KeystorePasswordFile = "", ""
	case SourceKeystore:
		cfg.PrivateKeyHex, cfg.PrivateKeyFile = "", ""
	default:
		return SourceConfig{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported key source %q (expected %s|%s|%s|%s)", source, SourceAuto, SourceEnv, SourceFile, SourceKeystore))
	}
	if o := strings.TrimSpace(override); o != "" {
		cfg = SourceConfig{Source: source, Override: o, PrivateKeyHex: o}
	}
	return cfg, nil
}

// LoadSoftwareKey loads the configured key. Precedence: hex, key file, keystore.
func LoadSoftwareKey(cfg SourceConfig) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(cfg.PrivateKeyHex) != "" {
		return parseHexKey(cfg.PrivateKeyHex)
	}
	if strings.TrimSpace(cfg.PrivateKeyFile) != "" {
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read private key file", err)
		}
		return parseHexKey(string(buf))
	}
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		password := cfg.KeystorePassword
		if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
			buf, err := os.ReadFile(cfg.KeystorePasswordFile)
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeUsage, "read keystore password file", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if strings.TrimSpace(password) == "" {
			return nil, clierr.New(clierr.CodeUsage, "keystore password is required")
		}
		buf, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read keystore file", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInvalidPrivateKey, "decrypt keystore", err)
		}
		return key.PrivateKey, nil
	}
	return nil, clierr.New(clierr.CodeKeyNotFound, fmt.Sprintf("missing signing key: set %s or %s or %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath))
}

// LoadInto loads the configured key into ring and returns its public key.
func LoadInto(ring *Keyring, cfg SourceConfig) (string, error) {
	priv, err := LoadSoftwareKey(cfg)
	if err != nil {
		return "", err
	}
	defer priv.D.SetUint64(0)
	return ring.AddPrivateKey(priv)
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	b, err := NormalizePrivateKey(raw)
	if err != nil {
		return nil, err
	}
	defer zero(b)
	return toECDSA(b)
}

// DefaultPrivateKeyFile returns $XDG_CONFIG_HOME/wallet/key.hex when it exists.
func DefaultPrivateKeyFile() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	path := filepath.Join(base, defaultPrivateKeyRelativePath)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}
