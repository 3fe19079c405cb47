package app

import (
	"strings"
	"testing"
	"time"
)

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("wallet requests list"); got != "requests list" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestStaleExceedsBudget(t *testing.T) {
	if staleExceedsBudget(time.Second, 2*time.Second, 0) {
		t.Fatal("fresh entry is never over budget")
	}
	if !staleExceedsBudget(10*time.Second, time.Second, time.Second) {
		t.Fatal("expected entry past ttl+max-stale to exceed budget")
	}
	if staleExceedsBudget(time.Hour, time.Second, -1) {
		t.Fatal("negative max-stale disables the budget")
	}
}

func TestRunnerVersion(t *testing.T) {
	isolate(t)
	res := run(t, "", "version")
	if res.code != 0 || strings.TrimSpace(res.stdout) != "0.1.0" {
		t.Fatalf("unexpected version output: %+v", res)
	}
}

func TestRunnerErrorEnvelopeIgnoresResultsOnly(t *testing.T) {
	isolate(t)
	res := run(t, "", "transfer", "--to", recipient, "--amount", "1", "--enable-commands", "balance", "--results-only")
	if res.code != 16 {
		t.Fatalf("expected exit 16, got %+v", res)
	}
	env := errorEnvelope(t, res.stderr)
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
	errBody := env["error"].(map[string]any)
	if errBody["type"] != "command_blocked" {
		t.Fatalf("unexpected error body: %v", errBody)
	}
}

func TestRunnerUnknownFlagIsUsageError(t *testing.T) {
	isolate(t)
	res := run(t, "", "balance", "--bogus")
	if res.code != 2 {
		t.Fatalf("expected usage exit code, got %+v", res)
	}
}

func TestRunnerAddressValidate(t *testing.T) {
	isolate(t)
	res := run(t, "", "address", "validate", recipient, "--results-only")
	if res.code != 0 {
		t.Fatalf("unexpected failure: %+v", res)
	}
	got := decodeJSON[map[string]any](t, res.stdout)
	if got["valid"] != true || got["hex"] != "41a614f803b6fd780986a42c78ec9c7f77e6ded13c" {
		t.Fatalf("unexpected address check: %v", got)
	}

	res = run(t, "", "address", "validate", "not-an-address", "--results-only")
	got = decodeJSON[map[string]any](t, res.stdout)
	if res.code != 0 || got["valid"] != false {
		t.Fatalf("expected invalid address report, got %+v", res)
	}
}

func TestRunnerKeyPublicAndValidate(t *testing.T) {
	isolate(t)
	t.Setenv("WALLET_PRIVATE_KEY", testPrivateKey)
	res := run(t, "", "key", "public", "--results-only")
	if res.code != 0 {
		t.Fatalf("unexpected failure: %+v", res)
	}
	got := decodeJSON[map[string]any](t, res.stdout)
	if got["public_key"] != testAddress || got["kind"] != "software" {
		t.Fatalf("unexpected key output: %v", got)
	}
	if strings.Contains(res.stdout, testPrivateKey) || strings.Contains(res.stderr, testPrivateKey) {
		t.Fatal("private key leaked into output")
	}

	res = run(t, "", "key", "validate", "--private-key", "zz", "--results-only")
	got = decodeJSON[map[string]any](t, res.stdout)
	if res.code != 0 || got["valid"] != false {
		t.Fatalf("expected invalid key report, got %+v", res)
	}
}

func TestRunnerKeyPublicWithoutKey(t *testing.T) {
	isolate(t)
	res := run(t, "", "key", "public")
	if res.code != 22 {
		t.Fatalf("expected key_not_found exit code, got %+v", res)
	}
}

func TestRunnerNetworksEndorsed(t *testing.T) {
	isolate(t)
	res := run(t, "", "networks", "endorsed", "--results-only")
	if res.code != 0 {
		t.Fatalf("unexpected failure: %+v", res)
	}
	got := decodeJSON[map[string]any](t, res.stdout)
	if got["unique"] != "trx:1:https://api.trongrid.io:443" || got["endorsed"] != true {
		t.Fatalf("unexpected endorsed network: %v", got)
	}
}

func TestRunnerTokensAndExplorers(t *testing.T) {
	isolate(t)
	res := run(t, "", "tokens", "default", "--results-only", "--select", "symbol,decimals")
	tokens := decodeJSON[[]map[string]any](t, res.stdout)
	if res.code != 0 || len(tokens) != 1 || tokens[0]["symbol"] != "TRX" || tokens[0]["decimals"] != float64(6) {
		t.Fatalf("unexpected tokens: %+v", res)
	}

	res = run(t, "", "explorers", "--tx", knownTxID, "--results-only")
	explorers := decodeJSON[[]map[string]any](t, res.stdout)
	if res.code != 0 || len(explorers) == 0 || !strings.HasSuffix(explorers[0]["link"].(string), knownTxID) {
		t.Fatalf("unexpected explorers: %+v", res)
	}
}

func TestRunnerSchemaMarksSigningCommands(t *testing.T) {
	isolate(t)
	res := run(t, "", "schema", "transfer", "--results-only")
	if res.code != 0 {
		t.Fatalf("unexpected failure: %+v", res)
	}
	got := decodeJSON[map[string]any](t, res.stdout)
	if got["path"] != "wallet transfer" || got["signs"] != true {
		t.Fatalf("unexpected schema: %v", got)
	}
}
