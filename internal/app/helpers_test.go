package app

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testPrivateKey = "1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	testAddress    = "TCWfJguCLonUkvmsptQKHUyUJ713pU7XQ1"
	testAddressHex = "411be31a94361a391bbafb2a4ccd704f57dc04d4bb"
	recipient      = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

	// 1 TRX from testAddress to recipient, first transaction built by trontest.
	knownTxID      = "50b01df44facc9d3645ff388b7d716bad69aac1d5447a342ba3606393d5f5c4f"
	knownSignature = "0xdf34f9207142622d33ef5f7c8cdffca3e12adabb1f3af93dea7ad4916c0031ea152b2e6981ceda43492a1a5abd0cd6e07793c588d5c001d454f2ed36fd006bb61c"
)

var walletEnv = []string{
	"WALLET_PRIVATE_KEY",
	"WALLET_PRIVATE_KEY_FILE",
	"WALLET_KEYSTORE_PATH",
	"WALLET_KEYSTORE_PASSWORD",
	"WALLET_KEYSTORE_PASSWORD_FILE",
	"WALLET_OUTPUT",
	"WALLET_CONSENT",
	"WALLET_CONSENT_ADDR",
	"WALLET_CONSENT_TIMEOUT",
	"WALLET_ORIGIN",
	"WALLET_HARDWARE_SIGNER_URL",
	"WALLET_HARDWARE_PUBLIC_KEYS",
	"WALLET_TRON_API_KEY",
	"WALLET_NO_CACHE",
	"WALLET_LOG_LEVEL",
}

// isolate points config, cache and journal at a temp dir and clears the
// WALLET_* environment.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	for _, key := range walletEnv {
		t.Setenv(key, "")
	}
	return tmp
}

type runResult struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	var in io.Reader = strings.NewReader(stdin)
	code := NewRunnerWithIO(in, &stdout, &stderr).Run(args)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func decodeJSON[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return v
}

// errorEnvelope extracts the JSON error envelope that follows any prompt text
// on stderr.
func errorEnvelope(t *testing.T, stderr string) map[string]any {
	t.Helper()
	idx := strings.Index(stderr, "{\n  \"version\"")
	if idx < 0 {
		t.Fatalf("no error envelope in stderr: %s", stderr)
	}
	return decodeJSON[map[string]any](t, stderr[idx:])
}
