package program

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"

	"github.com/radieske/prediction-bet-sync/internal/address"
	"github.com/radieske/prediction-bet-sync/internal/bet"
)

type fakeRPC struct {
	accounts map[solana.PublicKey][]byte
	owner    solana.PublicKey
	listed   solanarpc.GetProgramAccountsResult
	sendErr  error
	status   *solanarpc.SignatureStatusesResult
	sent     []*solana.Transaction
}

func (f *fakeRPC) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error) {
	data, ok := f.accounts[account]
	if !ok {
		return nil, solanarpc.ErrNotFound
	}
	return &solanarpc.GetAccountInfoResult{Value: &solanarpc.Account{
		Owner: f.owner,
		Data:  solanarpc.DataBytesOrJSONFromBytes(data),
	}}, nil
}

func (f *fakeRPC) GetProgramAccountsWithOpts(context.Context, solana.PublicKey, *solanarpc.GetProgramAccountsOpts) (solanarpc.GetProgramAccountsResult, error) {
	return f.listed, nil
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error) {
	return &solanarpc.GetLatestBlockhashResult{Value: &solanarpc.LatestBlockhashResult{}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ solanarpc.TransactionOpts) (solana.Signature, error) {
	f.sent = append(f.sent, tx)
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(context.Context, bool, ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error) {
	return &solanarpc.GetSignatureStatusesResult{Value: []*solanarpc.SignatureStatusesResult{f.status}}, nil
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{accounts: map[solana.PublicKey][]byte{}, owner: testProgram}
}

func TestFetchMasterAndBet(t *testing.T) {
	rpc := newFakeRPC()
	d := address.NewDeriver(testProgram)
	masterAddr, _ := d.Master()
	betAddr, _ := d.Bet(3)

	rpc.accounts[masterAddr], _ = EncodeMaster(bet.Master{LastBetID: 5})
	rpc.accounts[betAddr], _ = EncodeBet(bet.Bet{ID: 3, TargetPrice: decimal.NewFromInt(2), State: bet.StateClosed})

	c := New(rpc, testProgram)
	m, err := c.FetchMaster(context.Background())
	if err != nil || m.LastBetID != 5 {
		t.Fatalf("FetchMaster: %+v %v", m, err)
	}
	b, err := c.FetchBet(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchBet: %v", err)
	}
	if !b.Address.Equals(betAddr) || b.State != bet.StateClosed {
		t.Fatalf("unexpected bet: %+v", b)
	}
}

func TestFetchMissingAccountIsNotFound(t *testing.T) {
	c := New(newFakeRPC(), testProgram)
	if _, err := c.FetchMaster(context.Background()); !errors.Is(err, bet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.FetchBet(context.Background(), 99); !errors.Is(err, bet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchAccountOwnedByOtherProgramIsNotFound(t *testing.T) {
	rpc := newFakeRPC()
	rpc.owner = solana.SystemProgramID
	masterAddr, _ := address.NewDeriver(testProgram).Master()
	rpc.accounts[masterAddr], _ = EncodeMaster(bet.Master{LastBetID: 1})

	if _, err := New(rpc, testProgram).FetchMaster(context.Background()); !errors.Is(err, bet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchAllBetsSkipsUndecodable(t *testing.T) {
	good, _ := EncodeBet(bet.Bet{ID: 1, State: bet.StateOpen})
	rpc := newFakeRPC()
	rpc.listed = solanarpc.GetProgramAccountsResult{
		{Pubkey: solana.NewWallet().PublicKey(), Account: &solanarpc.Account{Data: solanarpc.DataBytesOrJSONFromBytes(good)}},
		{Pubkey: solana.NewWallet().PublicKey(), Account: &solanarpc.Account{Data: solanarpc.DataBytesOrJSONFromBytes([]byte{1, 2, 3})}},
	}
	bets, err := New(rpc, testProgram).FetchAllBets(context.Background())
	if err != nil {
		t.Fatalf("FetchAllBets: %v", err)
	}
	if len(bets) != 1 || bets[0].ID != 1 {
		t.Fatalf("expected only the decodable bet, got %+v", bets)
	}
}

func TestSubmitWithoutSignerIsPreconditionUnmet(t *testing.T) {
	rpc := newFakeRPC()
	_, err := New(rpc, testProgram).Submit(context.Background(), CloseBet{BetID: 1})
	if !errors.Is(err, bet.ErrPreconditionUnmet) {
		t.Fatalf("expected ErrPreconditionUnmet, got %v", err)
	}
	if len(rpc.sent) != 0 {
		t.Fatalf("nothing should have been sent")
	}
}

func TestSubmitConfirmed(t *testing.T) {
	rpc := newFakeRPC()
	rpc.status = &solanarpc.SignatureStatusesResult{Slot: 77, ConfirmationStatus: solanarpc.ConfirmationStatusConfirmed}
	signer := solana.NewWallet().PrivateKey

	c := New(rpc, testProgram, WithSigner(signer), WithPollInterval(time.Millisecond))
	rcpt, err := c.Submit(context.Background(), CloseBet{BetID: 1, Bet: solana.NewWallet().PublicKey(), Player: signer.PublicKey()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rcpt.Slot != 77 || rcpt.Instruction != NameCloseBet {
		t.Fatalf("unexpected receipt: %+v", rcpt)
	}
	if len(rpc.sent) != 1 || !rpc.sent[0].Message.AccountKeys[0].Equals(signer.PublicKey()) {
		t.Fatalf("expected one transaction paid by the signer")
	}
}

func TestSubmitRejectedByNode(t *testing.T) {
	rpc := newFakeRPC()
	rpc.sendErr = &jsonrpc.RPCError{Code: -32002, Message: "custom program error: 0x1771"}
	signer := solana.NewWallet().PrivateKey

	_, err := New(rpc, testProgram, WithSigner(signer)).Submit(context.Background(),
		CloseBet{BetID: 1, Bet: solana.NewWallet().PublicKey(), Player: signer.PublicKey()})
	if !errors.Is(err, bet.ErrRemoteRejected) {
		t.Fatalf("expected ErrRemoteRejected, got %v", err)
	}
	var be *bet.Error
	if !errors.As(err, &be) || be.Reason != "custom program error: 0x1771" {
		t.Fatalf("expected rejection reason to be carried, got %v", err)
	}
}

func TestSubmitFailedOnChain(t *testing.T) {
	rpc := newFakeRPC()
	rpc.status = &solanarpc.SignatureStatusesResult{Err: map[string]any{"InstructionError": []any{0, "Custom"}}}
	signer := solana.NewWallet().PrivateKey

	_, err := New(rpc, testProgram, WithSigner(signer), WithPollInterval(time.Millisecond)).Submit(context.Background(),
		CloseBet{BetID: 1, Bet: solana.NewWallet().PublicKey(), Player: signer.PublicKey()})
	if !errors.Is(err, bet.ErrRemoteRejected) {
		t.Fatalf("expected ErrRemoteRejected, got %v", err)
	}
}

func TestSubmitTimeoutIsUnavailable(t *testing.T) {
	rpc := newFakeRPC() // status nil: nunca confirma
	signer := solana.NewWallet().PrivateKey
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(rpc, testProgram, WithSigner(signer), WithPollInterval(time.Millisecond)).Submit(ctx,
		CloseBet{BetID: 1, Bet: solana.NewWallet().PublicKey(), Player: signer.PublicKey()})
	if !errors.Is(err, bet.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(rpc.sent))
	}
}
