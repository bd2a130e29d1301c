// Package memory implementa o programa de apostas em memória, com o mesmo contrato do client remoto.
// Usado no modo LEDGER_MODE=memory e como dublê nos testes.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/radieske/prediction-bet-sync/internal/address"
	"github.com/radieske/prediction-bet-sync/internal/bet"
	"github.com/radieske/prediction-bet-sync/internal/program"
)

// PriceFunc devolve o preço atual do oráculo; ok=false quando não há preço
type PriceFunc func(oracle solana.PublicKey) (decimal.Decimal, bool)

// Ledger é o estado compartilhado do programa. Cada identidade acessa via Handle.
type Ledger struct {
	mu       sync.Mutex
	deriver  address.Deriver
	master   bet.Master
	bets     map[uint64]bet.Bet
	slot     uint64
	submits  int
	fetchErr error
	now      func() time.Time
	price    PriceFunc
}

// Option customiza o Ledger
type Option func(*Ledger)

// WithClock troca o relógio usado para timestamps e expiração
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithOracle define a fonte de preço usada no claim
func WithOracle(fn PriceFunc) Option {
	return func(l *Ledger) { l.price = fn }
}

// NewLedger cria um programa vazio (lastBetId = 0)
func NewLedger(programID solana.PublicKey, opts ...Option) *Ledger {
	l := &Ledger{
		deriver: address.NewDeriver(programID),
		bets:    make(map[uint64]bet.Bet),
		now:     time.Now,
		price:   func(solana.PublicKey) (decimal.Decimal, bool) { return decimal.Zero, false },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Seed grava uma aposta diretamente, como se já existisse on-chain
func (l *Ledger) Seed(b bet.Bet) error {
	addr, err := l.deriver.Bet(b.ID)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b.Address = addr
	l.bets[b.ID] = b
	if b.ID > l.master.LastBetID {
		l.master.LastBetID = b.ID
	}
	return nil
}

// SetFetchError faz todas as leituras falharem com Unavailable (nil desliga)
func (l *Ledger) SetFetchError(err error) {
	l.mu.Lock()
	l.fetchErr = err
	l.mu.Unlock()
}

// Submits retorna quantas transações foram aceitas ou rejeitadas pelo programa
func (l *Ledger) Submits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submits
}

// Handle amarra o Ledger a uma identidade; signer zero significa somente leitura
func (l *Ledger) Handle(signer solana.PublicKey) *Handle {
	return &Handle{ledger: l, signer: signer}
}

// Handle implementa program.Handle sobre o Ledger
type Handle struct {
	ledger *Ledger
	signer solana.PublicKey
}

var _ program.Handle = (*Handle)(nil)

func (h *Handle) Identity() (solana.PublicKey, bool) {
	return h.signer, !h.signer.IsZero()
}

func (h *Handle) FetchMaster(ctx context.Context) (bet.Master, error) {
	l := h.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx, "fetchMaster"); err != nil {
		return bet.Master{}, err
	}
	return l.master, nil
}

func (h *Handle) FetchBet(ctx context.Context, id uint64) (bet.Bet, error) {
	l := h.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx, "fetchBet"); err != nil {
		return bet.Bet{}, err
	}
	b, ok := l.bets[id]
	if !ok {
		return bet.Bet{}, bet.NewError("fetchBet", bet.ErrNotFound, fmt.Sprintf("bet %d", id), nil)
	}
	return l.expire(b), nil
}

// FetchAllBets devolve as apostas em ordem de id
func (h *Handle) FetchAllBets(ctx context.Context) ([]bet.Bet, error) {
	l := h.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx, "fetchAllBets"); err != nil {
		return nil, err
	}
	out := make([]bet.Bet, 0, len(l.bets))
	for _, b := range l.bets {
		out = append(out, l.expire(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *Handle) Submit(ctx context.Context, ix program.Instruction) (program.Receipt, error) {
	op := ix.Name()
	if h.signer.IsZero() {
		return program.Receipt{}, bet.NewError(op, bet.ErrPreconditionUnmet, "no signer", nil)
	}
	if err := ctx.Err(); err != nil {
		return program.Receipt{}, bet.NewError(op, bet.ErrUnavailable, "", err)
	}

	l := h.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++

	var err error
	switch v := ix.(type) {
	case program.CreateBet:
		err = l.createBet(h.signer, v)
	case program.EnterBet:
		err = l.enterBet(h.signer, v)
	case program.CloseBet:
		err = l.closeBet(h.signer, v)
	case program.ClaimBet:
		err = l.claimBet(h.signer, v)
	default:
		err = fmt.Errorf("unknown instruction %T", ix)
	}
	if err != nil {
		return program.Receipt{}, bet.NewError(op, bet.ErrRemoteRejected, err.Error(), nil)
	}

	l.slot++
	return program.Receipt{Instruction: op, Signature: fakeSignature(l.slot), Slot: l.slot}, nil
}

func (l *Ledger) readable(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return bet.NewError(op, bet.ErrUnavailable, "", err)
	}
	if l.fetchErr != nil {
		return bet.NewError(op, bet.ErrUnavailable, "", l.fetchErr)
	}
	return nil
}

// expire aplica a expiração de apostas abertas cujo prazo passou
func (l *Ledger) expire(b bet.Bet) bet.Bet {
	if b.State == bet.StateOpen && !l.now().Before(b.ExpiresAt()) {
		b.State = bet.StateExpired
		l.bets[b.ID] = b
	}
	return b
}

func (l *Ledger) lookup(id uint64, addr solana.PublicKey) (bet.Bet, error) {
	want, err := l.deriver.Bet(id)
	if err != nil {
		return bet.Bet{}, err
	}
	if !want.Equals(addr) {
		return bet.Bet{}, fmt.Errorf("bet account %s does not match seeds for id %d", addr, id)
	}
	b, ok := l.bets[id]
	if !ok {
		return bet.Bet{}, fmt.Errorf("bet %d: account not initialized", id)
	}
	return l.expire(b), nil
}

func (l *Ledger) createBet(signer solana.PublicKey, ix program.CreateBet) error {
	if !ix.Player.Equals(signer) {
		return fmt.Errorf("player %s did not sign", ix.Player)
	}
	masterAddr, err := l.deriver.Master()
	if err != nil {
		return err
	}
	if !ix.Master.Equals(masterAddr) {
		return fmt.Errorf("master account mismatch")
	}
	id := l.master.NextBetID()
	if ix.BetID != id {
		return fmt.Errorf("bet id %d is not next id %d", ix.BetID, id)
	}
	want, err := l.deriver.Bet(id)
	if err != nil {
		return err
	}
	if !ix.Bet.Equals(want) {
		return fmt.Errorf("bet account %s does not match seeds for id %d", ix.Bet, id)
	}
	if _, exists := l.bets[id]; exists {
		return fmt.Errorf("bet %d: account already in use", id)
	}
	if ix.Amount == 0 {
		return fmt.Errorf("amount must be positive")
	}
	l.bets[id] = bet.Bet{
		Address:     want,
		ID:          id,
		Amount:      ix.Amount,
		TargetPrice: ix.TargetPrice,
		Duration:    ix.Duration,
		OracleKey:   ix.OracleKey,
		PredictionA: &bet.Prediction{Player: signer, Stake: ix.Amount, Price: ix.TargetPrice},
		State:       bet.StateOpen,
		CreatedAt:   l.now().Unix(),
	}
	l.master.LastBetID = id
	return nil
}

func (l *Ledger) enterBet(signer solana.PublicKey, ix program.EnterBet) error {
	b, err := l.lookup(ix.BetID, ix.Bet)
	if err != nil {
		return err
	}
	if b.State != bet.StateOpen {
		return fmt.Errorf("bet %d is %s, not open", b.ID, b.State)
	}
	if b.PredictionA != nil && b.PredictionA.Player.Equals(signer) {
		return fmt.Errorf("creator cannot enter own bet")
	}
	b.PredictionB = &bet.Prediction{Player: signer, Stake: b.Amount, Price: ix.Price}
	b.State = bet.StateEntered
	l.bets[b.ID] = b
	return nil
}

func (l *Ledger) closeBet(signer solana.PublicKey, ix program.CloseBet) error {
	b, err := l.lookup(ix.BetID, ix.Bet)
	if err != nil {
		return err
	}
	if b.State != bet.StateEntered {
		return fmt.Errorf("bet %d is %s, not entered", b.ID, b.State)
	}
	if !b.IsParticipant(signer) {
		return fmt.Errorf("%s is not a participant", signer)
	}
	b.State = bet.StateClosed
	l.bets[b.ID] = b
	return nil
}

func (l *Ledger) claimBet(_ solana.PublicKey, ix program.ClaimBet) error {
	b, err := l.lookup(ix.BetID, ix.Bet)
	if err != nil {
		return err
	}
	if b.State != bet.StateClosed {
		return fmt.Errorf("bet %d is %s, not closed", b.ID, b.State)
	}
	if !ix.Oracle.Equals(b.OracleKey) {
		return fmt.Errorf("oracle %s does not match bet oracle", ix.Oracle)
	}
	if b.PredictionA == nil || b.PredictionB == nil ||
		!ix.PlayerA.Equals(b.PredictionA.Player) || !ix.PlayerB.Equals(b.PredictionB.Player) {
		return fmt.Errorf("participants do not match bet %d", b.ID)
	}
	if _, ok := l.price(ix.Oracle); !ok {
		return fmt.Errorf("oracle has no price")
	}
	b.State = bet.StateClaimed
	l.bets[b.ID] = b
	return nil
}

func fakeSignature(slot uint64) solana.Signature {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], slot)
	a := sha256.Sum256(append([]byte("sig-a"), seed[:]...))
	b := sha256.Sum256(append([]byte("sig-b"), seed[:]...))
	var sig solana.Signature
	copy(sig[:32], a[:])
	copy(sig[32:], b[:])
	return sig
}
