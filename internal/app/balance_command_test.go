package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggonzalez94/wallet-cli/internal/model"
	"github.com/ggonzalez94/wallet-cli/internal/tron/trontest"
)

type balanceEnvelope struct {
	Success  bool              `json:"success"`
	Data     model.BalanceView `json:"data"`
	Warnings []string          `json:"warnings"`
	Meta     struct {
		Cache    model.CacheStatus  `json:"cache"`
		Networks []model.NodeStatus `json:"networks"`
	} `json:"meta"`
}

func TestBalanceIsCachedPerNetworkAndAddress(t *testing.T) {
	isolate(t)
	node := trontest.NewNode()
	defer node.Close()
	node.SetBalance(testAddressHex, 12_345_678)

	first := run(t, "", "balance", "--address", testAddress, "--rpc-url", node.URL())
	if first.code != 0 {
		t.Fatalf("balance failed: %+v", first)
	}
	env := decodeJSON[balanceEnvelope](t, first.stdout)
	if env.Data.Amount != "12.345678" || env.Data.BaseUnits != 12_345_678 || env.Data.Symbol != "TRX" {
		t.Fatalf("unexpected balance: %+v", env.Data)
	}
	if env.Meta.Cache.Status != "write" || len(env.Meta.Networks) != 1 || env.Meta.Networks[0].Status != "ok" {
		t.Fatalf("unexpected meta: %+v", env.Meta)
	}

	second := run(t, "", "balance", "--address", testAddress, "--rpc-url", node.URL())
	env = decodeJSON[balanceEnvelope](t, second.stdout)
	if second.code != 0 || env.Meta.Cache.Status != "hit" || env.Data.Amount != "12.345678" {
		t.Fatalf("expected cache hit, got %+v", second)
	}
	if node.AccountCalls.Load() != 1 {
		t.Fatalf("expected one node query, got %d", node.AccountCalls.Load())
	}

	third := run(t, "", "balance", "--address", testAddress, "--rpc-url", node.URL(), "--no-cache")
	if third.code != 0 || node.AccountCalls.Load() != 2 {
		t.Fatalf("expected --no-cache to query the node, got %+v calls=%d", third, node.AccountCalls.Load())
	}
}

func TestBalanceServesStaleEntryWhenNodeFails(t *testing.T) {
	tmp := isolate(t)
	configDir := filepath.Join(tmp, "config", "wallet")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("cache:\n  balance_ttl: 10ms\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	node := trontest.NewNode()
	defer node.Close()
	node.SetBalance(testAddressHex, 5_000_000)

	if res := run(t, "", "balance", "--address", testAddress, "--rpc-url", node.URL()); res.code != 0 {
		t.Fatalf("balance failed: %+v", res)
	}
	time.Sleep(50 * time.Millisecond)
	node.FailWith.Store("node is syncing")

	res := run(t, "", "balance", "--address", testAddress, "--rpc-url", node.URL())
	if res.code != 0 {
		t.Fatalf("expected stale fallback, got %+v", res)
	}
	env := decodeJSON[balanceEnvelope](t, res.stdout)
	if !env.Meta.Cache.Stale || env.Data.Amount != "5" || len(env.Warnings) != 1 {
		t.Fatalf("expected stale data with a warning, got %+v", env)
	}

	res = run(t, "", "balance", "--address", testAddress, "--rpc-url", node.URL(), "--no-stale")
	if res.code != 14 {
		t.Fatalf("expected stale_data exit code with --no-stale, got %+v", res)
	}
}

func TestBalanceDefaultsToConfiguredKey(t *testing.T) {
	isolate(t)
	t.Setenv("WALLET_PRIVATE_KEY", testPrivateKey)
	node := trontest.NewNode()
	defer node.Close()
	node.SetBalance(testAddressHex, 1)

	res := run(t, "", "balance", "--rpc-url", node.URL(), "--results-only", "--no-cache")
	got := decodeJSON[model.BalanceView](t, res.stdout)
	if res.code != 0 || got.Address != testAddress || got.Amount != "0.000001" {
		t.Fatalf("unexpected balance: %+v", res)
	}
}

func TestNetworksCheckReportsNodeStatus(t *testing.T) {
	isolate(t)
	node := trontest.NewNode()
	defer node.Close()

	res := run(t, "", "networks", "check", "--rpc-url", node.URL(), "--results-only")
	items := decodeJSON[[]model.NetworkInfo](t, res.stdout)
	if res.code != 0 || len(items) != 1 || items[0].Status != "ok" || items[0].Endorsed {
		t.Fatalf("unexpected check result: %+v", res)
	}

	node.FailWith.Store("down")
	res = run(t, "", "networks", "check", "--rpc-url", node.URL(), "--results-only")
	items = decodeJSON[[]model.NetworkInfo](t, res.stdout)
	if res.code != 0 || items[0].Status != "unavailable" {
		t.Fatalf("expected unavailable status, got %+v", res)
	}
}
