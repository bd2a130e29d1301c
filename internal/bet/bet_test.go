package bet

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

func TestPriceWireRoundTrip(t *testing.T) {
	p := decimal.RequireFromString("50000.12345678")
	m, err := PriceToWire(p)
	if err != nil {
		t.Fatalf("PriceToWire: %v", err)
	}
	if m != 5000012345678 {
		t.Fatalf("expected mantissa 5000012345678, got %d", m)
	}
	if got := PriceFromWire(m); !got.Equal(p) {
		t.Fatalf("expected %s, got %s", p, got)
	}
}

func TestPriceToWireRejectsExtraPrecision(t *testing.T) {
	if _, err := PriceToWire(decimal.RequireFromString("1.123456789")); err == nil {
		t.Fatalf("expected error for 9 decimal places")
	}
	if _, err := PriceToWire(decimal.RequireFromString("1e20")); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestStateTerminalAndText(t *testing.T) {
	if StateOpen.Terminal() || StateEntered.Terminal() || StateClosed.Terminal() {
		t.Fatalf("non-terminal state reported terminal")
	}
	if !StateClaimed.Terminal() || !StateExpired.Terminal() {
		t.Fatalf("terminal state not reported terminal")
	}
	st, err := ParseState("Closed")
	if err != nil || st != StateClosed {
		t.Fatalf("ParseState: got %v, %v", st, err)
	}
	if State(9).Valid() {
		t.Fatalf("state 9 should be invalid")
	}
}

func TestBetExpiryAndParticipants(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	bt := Bet{
		CreatedAt:   1_700_000_000,
		Duration:    3600,
		PredictionA: &Prediction{Player: a},
	}
	created := time.Unix(1_700_000_000, 0)
	if got := bt.RemainingAt(created.Add(time.Hour - 100*time.Second)); got != 100*time.Second {
		t.Fatalf("expected 100s remaining, got %v", got)
	}
	if !bt.IsParticipant(a) || bt.IsParticipant(b) {
		t.Fatalf("participant check wrong before enter")
	}
	bt.PredictionB = &Prediction{Player: b}
	if !bt.IsParticipant(b) {
		t.Fatalf("expected b to be participant after enter")
	}
	if bt.ExpiresAt() != created.Add(time.Hour) {
		t.Fatalf("unexpected expiry %v", bt.ExpiresAt())
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("custom program error: 0x1771")
	err := fmt.Errorf("create bet: %w", NewError("createBet", ErrRemoteRejected, "duplicate id", cause))

	if !errors.Is(err, ErrRemoteRejected) {
		t.Fatalf("expected ErrRemoteRejected")
	}
	if errors.Is(err, ErrInvalidState) {
		t.Fatalf("did not expect ErrInvalidState")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if KindOf(err) != ErrRemoteRejected {
		t.Fatalf("KindOf: got %v", KindOf(err))
	}
	if KindOf(errors.New("boom")) != nil {
		t.Fatalf("KindOf should be nil for foreign errors")
	}
	want := "createBet: remote rejected: duplicate id: custom program error: 0x1771"
	var be *Error
	if !errors.As(err, &be) || be.Error() != want {
		t.Fatalf("unexpected message %q", be.Error())
	}
}
