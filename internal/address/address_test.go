package address

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/radieske/prediction-bet-sync/internal/bet"
)

var testProgram = solana.MustPublicKeyFromBase58("GXmG723PT8ThnLxPbxM1SNCxnfRec2yX7rkaDvvTL6F3")

func TestBetAddressIsDeterministic(t *testing.T) {
	d := NewDeriver(testProgram)
	for _, id := range []uint64{0, 1, 6, 1 << 40, ^uint64(0)} {
		a1, err := d.Bet(id)
		if err != nil {
			t.Fatalf("Bet(%d): %v", id, err)
		}
		a2, err := d.Bet(id)
		if err != nil {
			t.Fatalf("Bet(%d) second call: %v", id, err)
		}
		if !a1.Equals(a2) {
			t.Fatalf("Bet(%d) not deterministic: %s vs %s", id, a1, a2)
		}
	}
}

func TestDistinctIDsDeriveDistinctAddresses(t *testing.T) {
	d := NewDeriver(testProgram)
	seen := map[solana.PublicKey]uint64{}
	for id := uint64(1); id <= 32; id++ {
		a, err := d.Bet(id)
		if err != nil {
			t.Fatalf("Bet(%d): %v", id, err)
		}
		if prev, ok := seen[a]; ok {
			t.Fatalf("ids %d and %d derived the same address", prev, id)
		}
		seen[a] = id
	}
	m, err := d.Master()
	if err != nil {
		t.Fatalf("Master: %v", err)
	}
	if _, clash := seen[m]; clash {
		t.Fatalf("master address collides with a bet address")
	}
}

func TestDerivedAddressMatchesBump(t *testing.T) {
	addr, bump, err := Derive([][]byte{SeedBet, BetIDSeed(6)}, testProgram)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	again, err := solana.CreateProgramAddress([][]byte{SeedBet, BetIDSeed(6), {bump}}, testProgram)
	if err != nil {
		t.Fatalf("CreateProgramAddress: %v", err)
	}
	if !addr.Equals(again) {
		t.Fatalf("bump %d does not reproduce %s (got %s)", bump, addr, again)
	}
}

func TestBetIDSeedIsLittleEndian(t *testing.T) {
	got := BetIDSeed(0x0102030405060708)
	want := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}
}

func TestDeriveRejectsOversizedSeed(t *testing.T) {
	_, _, err := Derive([][]byte{bytes.Repeat([]byte{1}, solana.MaxSeedLength+1)}, testProgram)
	if !errors.Is(err, bet.ErrInvalidSeed) {
		t.Fatalf("expected ErrInvalidSeed, got %v", err)
	}
}

func TestDeriveRejectsTooManySeeds(t *testing.T) {
	seeds := make([][]byte, solana.MaxSeeds)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, _, err := Derive(seeds, testProgram)
	if !errors.Is(err, bet.ErrInvalidSeed) {
		t.Fatalf("expected ErrInvalidSeed, got %v", err)
	}
}
