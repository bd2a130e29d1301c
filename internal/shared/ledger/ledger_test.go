package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/shared/config"
	"github.com/radieske/prediction-bet-sync/internal/syncstore"
)

const feed = "H6ARHf6YXhGYeQfUzQNGk6rDNnLBQKrenN712K4AQJEG"

func memoryConfig() config.Config {
	return config.Config{
		LedgerMode:   ModeMemory,
		ProgramID:    "GXmG723PT8ThnLxPbxM1SNCxnfRec2yX7rkaDvvTL6F3",
		OraclePrices: feed + "=64000.25",
	}
}

func TestBuildMemorySharesOneLedger(t *testing.T) {
	s, err := Build(memoryConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	q, err := s.Oracle.Price(context.Background(), solana.MustPublicKeyFromBase58(feed))
	if err != nil || !q.Price.Equal(decimal.RequireFromString("64000.25")) {
		t.Fatalf("unexpected quote %+v (%v)", q, err)
	}

	alice := solana.NewWallet().PrivateKey
	h, err := s.Factory(s.Connection, alice)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if id, ok := h.Identity(); !ok || !id.Equals(alice.PublicKey()) {
		t.Fatalf("handle should carry alice's identity")
	}
	ro, _ := s.Factory(s.Connection, nil)
	if _, ok := ro.Identity(); ok {
		t.Fatalf("nil signer should give a read-only handle")
	}
	m, err := ro.FetchMaster(context.Background())
	if err != nil || m.LastBetID != 0 {
		t.Fatalf("fresh ledger should have lastBetId 0: %+v %v", m, err)
	}
}

func TestBuildRejectsBadConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.LedgerMode = "ganache"
	if _, err := Build(cfg, zap.NewNop()); err == nil {
		t.Fatalf("unknown mode should fail")
	}
	cfg = memoryConfig()
	cfg.ProgramID = "not-base58!"
	if _, err := Build(cfg, zap.NewNop()); err == nil {
		t.Fatalf("bad program id should fail")
	}
	cfg = memoryConfig()
	cfg.OraclePrices = feed
	if _, err := Build(cfg, zap.NewNop()); err == nil {
		t.Fatalf("price without value should fail")
	}
}

func TestBuildRPCDoesNotDial(t *testing.T) {
	cfg := memoryConfig()
	cfg.LedgerMode = ModeRPC
	cfg.RPCEndpoint = "http://127.0.0.1:1"
	cfg.Commitment = "confirmed"
	s, err := Build(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h, err := s.Factory(syncstore.Connection{Endpoint: cfg.RPCEndpoint, ProgramID: s.ProgramID}, nil)
	if err != nil || h == nil {
		t.Fatalf("factory: %v", err)
	}
}

func TestLoadKeypair(t *testing.T) {
	if k, err := LoadKeypair(""); err != nil || k != nil {
		t.Fatalf("empty path should mean no identity")
	}
	w := solana.NewWallet()
	path := filepath.Join(t.TempDir(), "id.json")
	ints := make([]int, len(w.PrivateKey))
	for i, b := range w.PrivateKey {
		ints[i] = int(b)
	}
	raw, _ := json.Marshal(ints)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	k, err := LoadKeypair(path)
	if err != nil || !k.PublicKey().Equals(w.PublicKey()) {
		t.Fatalf("unexpected key (%v)", err)
	}
	if _, err := LoadKeypair(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("missing file should fail")
	}
}
