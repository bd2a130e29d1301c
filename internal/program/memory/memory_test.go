package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/radieske/prediction-bet-sync/internal/address"
	"github.com/radieske/prediction-bet-sync/internal/bet"
	"github.com/radieske/prediction-bet-sync/internal/program"
)

var testProgram = solana.MustPublicKeyFromBase58("GXmG723PT8ThnLxPbxM1SNCxnfRec2yX7rkaDvvTL6F3")

func createIx(t *testing.T, id uint64, player solana.PublicKey) program.CreateBet {
	t.Helper()
	d := address.NewDeriver(testProgram)
	betAddr, err := d.Bet(id)
	if err != nil {
		t.Fatalf("derive bet: %v", err)
	}
	masterAddr, err := d.Master()
	if err != nil {
		t.Fatalf("derive master: %v", err)
	}
	return program.CreateBet{
		BetID: id, Bet: betAddr, Master: masterAddr, Player: player,
		Amount: 100, TargetPrice: decimal.NewFromInt(50), Duration: 3600,
		OracleKey: solana.NewWallet().PublicKey(),
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	l := NewLedger(testProgram)
	alice := solana.NewWallet().PublicKey()
	h := l.Handle(alice)
	ctx := context.Background()

	for id := uint64(1); id <= 3; id++ {
		if _, err := h.Submit(ctx, createIx(t, id, alice)); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	m, err := h.FetchMaster(ctx)
	if err != nil || m.LastBetID != 3 {
		t.Fatalf("master: %+v %v", m, err)
	}
	bets, err := h.FetchAllBets(ctx)
	if err != nil || len(bets) != 3 || bets[0].ID != 1 || bets[2].ID != 3 {
		t.Fatalf("bets: %+v %v", bets, err)
	}
}

func TestCreateWithStaleIDIsRejected(t *testing.T) {
	l := NewLedger(testProgram)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	ctx := context.Background()

	// os dois leram lastBetId=0; o primeiro a chegar vence
	if _, err := l.Handle(alice).Submit(ctx, createIx(t, 1, alice)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := l.Handle(bob).Submit(ctx, createIx(t, 1, bob))
	if !errors.Is(err, bet.ErrRemoteRejected) {
		t.Fatalf("expected ErrRemoteRejected, got %v", err)
	}
}

func TestOpenBetExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLedger(testProgram, WithClock(func() time.Time { return now }))
	alice := solana.NewWallet().PublicKey()
	h := l.Handle(alice)
	if _, err := h.Submit(context.Background(), createIx(t, 1, alice)); err != nil {
		t.Fatalf("create: %v", err)
	}
	now = now.Add(2 * time.Hour)
	b, err := h.FetchBet(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchBet: %v", err)
	}
	if b.State != bet.StateExpired {
		t.Fatalf("expected expired, got %s", b.State)
	}
}

func TestFullLifecycle(t *testing.T) {
	oracle := solana.NewWallet().PublicKey()
	l := NewLedger(testProgram, WithOracle(func(k solana.PublicKey) (decimal.Decimal, bool) {
		return decimal.NewFromInt(51), k.Equals(oracle)
	}))
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	ctx := context.Background()

	ix := createIx(t, 1, alice)
	ix.OracleKey = oracle
	if _, err := l.Handle(alice).Submit(ctx, ix); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.Handle(alice).Submit(ctx, program.EnterBet{BetID: 1, Bet: ix.Bet, Player: alice, Price: decimal.NewFromInt(40)}); !errors.Is(err, bet.ErrRemoteRejected) {
		t.Fatalf("creator entering own bet should be rejected, got %v", err)
	}
	if _, err := l.Handle(bob).Submit(ctx, program.EnterBet{BetID: 1, Bet: ix.Bet, Player: bob, Price: decimal.NewFromInt(40)}); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := l.Handle(bob).Submit(ctx, program.CloseBet{BetID: 1, Bet: ix.Bet, Player: bob}); err != nil {
		t.Fatalf("close: %v", err)
	}
	rcpt, err := l.Handle(bob).Submit(ctx, program.ClaimBet{BetID: 1, Bet: ix.Bet, Oracle: oracle, PlayerA: alice, PlayerB: bob, Signer: bob})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if rcpt.Signature.IsZero() {
		t.Fatalf("expected a signature in the receipt")
	}
	b, _ := l.Handle(bob).FetchBet(ctx, 1)
	if b.State != bet.StateClaimed {
		t.Fatalf("expected claimed, got %s", b.State)
	}
	if l.Submits() != 5 {
		t.Fatalf("expected 5 submits, got %d", l.Submits())
	}
}

func TestReadOnlyHandleCannotSubmit(t *testing.T) {
	l := NewLedger(testProgram)
	h := l.Handle(solana.PublicKey{})
	if _, ok := h.Identity(); ok {
		t.Fatalf("zero signer should report no identity")
	}
	_, err := h.Submit(context.Background(), createIx(t, 1, solana.PublicKey{}))
	if !errors.Is(err, bet.ErrPreconditionUnmet) {
		t.Fatalf("expected ErrPreconditionUnmet, got %v", err)
	}
	if l.Submits() != 0 {
		t.Fatalf("nothing should reach the program")
	}
}

func TestFetchErrorIsUnavailable(t *testing.T) {
	l := NewLedger(testProgram)
	l.SetFetchError(errors.New("connection refused"))
	if _, err := l.Handle(solana.PublicKey{}).FetchAllBets(context.Background()); !errors.Is(err, bet.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
