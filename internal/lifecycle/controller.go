// Package lifecycle orquestra as quatro transições da aposta (create, enter, close, claim).
// Toda pré-condição local é checada antes de qualquer chamada de rede.
package lifecycle

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/address"
	"github.com/radieske/prediction-bet-sync/internal/bet"
	"github.com/radieske/prediction-bet-sync/internal/oracle"
	"github.com/radieske/prediction-bet-sync/internal/program"
	"github.com/radieske/prediction-bet-sync/internal/syncstore"
	"github.com/radieske/prediction-bet-sync/pkg/contracts/events"
)

// MinRemainingUntilExpiry é o prazo mínimo restante para aceitar um enter
const MinRemainingUntilExpiry = 120 * time.Second

// Source é a visão do Store usada pelo controller
type Source interface {
	Snapshot() syncstore.State
	Handle() (program.Handle, error)
	Refresh(kinds ...syncstore.Kind)
}

// Publisher recebe os eventos das transações confirmadas (Kafka no sync-service)
type Publisher interface {
	PublishLifecycle(ctx context.Context, e events.BetLifecycle) error
}

// Result identifica a transação confirmada de uma operação
type Result struct {
	Op      string          `json:"op"`
	BetID   uint64          `json:"betId"`
	Receipt program.Receipt `json:"receipt"`
}

// Outcome é o resultado de uma operação, entregue ao Notifier; Err nil significa sucesso
type Outcome struct {
	Result
	Err error
}

// Notifier é avisado de todo sucesso e toda falha
type Notifier interface {
	Notify(o Outcome)
}

// NotifierFunc adapta uma função para Notifier
type NotifierFunc func(o Outcome)

func (f NotifierFunc) Notify(o Outcome) { f(o) }

// CreateParams são os argumentos de uma nova aposta
type CreateParams struct {
	Amount      uint64
	TargetPrice decimal.Decimal
	Duration    uint32
	OracleKey   solana.PublicKey
}

// Controller executa as transições sobre o handle atual do Store
type Controller struct {
	src       Source
	oracle    oracle.Source
	programID solana.PublicKey
	deriver   address.Deriver
	log       *zap.Logger
	notifier  Notifier
	publisher Publisher
	now       func() time.Time
	minRemain time.Duration

	onOutcome func(op, outcome string)
}

// Option customiza o Controller
type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMinRemaining troca o prazo mínimo para enter
func WithMinRemaining(d time.Duration) Option {
	return func(c *Controller) { c.minRemain = d }
}

// WithOutcomeObserver recebe (op, "ok"|kind) de cada operação; usado para métricas
func WithOutcomeObserver(fn func(op, outcome string)) Option {
	return func(c *Controller) { c.onOutcome = fn }
}

func New(src Source, feeds oracle.Source, programID solana.PublicKey, opts ...Option) *Controller {
	c := &Controller{
		src:       src,
		oracle:    feeds,
		programID: programID,
		deriver:   address.NewDeriver(programID),
		log:       zap.NewNop(),
		now:       time.Now,
		minRemain: MinRemainingUntilExpiry,
		onOutcome: func(string, string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateBet cria a aposta lastBetId+1 com o chamador como predictionA
func (c *Controller) CreateBet(ctx context.Context, p CreateParams) (Result, error) {
	const op = events.OpCreate

	if p.Amount == 0 {
		return c.fail(op, 0, bet.NewError(op, bet.ErrPreconditionUnmet, "amount must be positive", nil))
	}
	if p.Duration == 0 {
		return c.fail(op, 0, bet.NewError(op, bet.ErrPreconditionUnmet, "duration must be positive", nil))
	}
	if p.OracleKey.IsZero() {
		return c.fail(op, 0, bet.NewError(op, bet.ErrPreconditionUnmet, "oracle key required", nil))
	}
	if !p.TargetPrice.IsPositive() {
		return c.fail(op, 0, bet.NewError(op, bet.ErrPreconditionUnmet, "target price must be positive", nil))
	}
	if _, err := bet.PriceToWire(p.TargetPrice); err != nil {
		return c.fail(op, 0, bet.NewError(op, bet.ErrPreconditionUnmet, "target price", err))
	}

	h, player, err := c.signer(op)
	if err != nil {
		return c.fail(op, 0, err)
	}
	st := c.src.Snapshot()
	if !st.Master.Ready() {
		return c.fail(op, 0, bet.NewError(op, bet.ErrPreconditionUnmet, "master account not loaded", st.Master.Err()))
	}

	// id nunca é reservado localmente: se outro create chegar antes, o programa rejeita este
	id := st.Master.Value.NextBetID()
	betAddr, err := c.deriver.Bet(id)
	if err != nil {
		return c.fail(op, id, err)
	}
	masterAddr, err := c.deriver.Master()
	if err != nil {
		return c.fail(op, id, err)
	}

	rcpt, err := h.Submit(ctx, program.CreateBet{
		BetID:       id,
		Bet:         betAddr,
		Master:      masterAddr,
		Player:      player,
		Amount:      p.Amount,
		TargetPrice: p.TargetPrice,
		Duration:    p.Duration,
		OracleKey:   p.OracleKey,
	})
	if err != nil {
		return c.fail(op, id, classify(op, err))
	}

	c.src.Refresh(syncstore.KindMaster, syncstore.KindBets)
	return c.succeed(ctx, op, id, betAddr, player, rcpt, p.Amount, p.TargetPrice), nil
}

// EnterBet posiciona o chamador como contraparte de uma aposta aberta
func (c *Controller) EnterBet(ctx context.Context, b bet.Bet, price decimal.Decimal) (Result, error) {
	const op = events.OpEnter

	if err := requireState(op, b, bet.StateOpen); err != nil {
		return c.fail(op, b.ID, err)
	}
	remaining := b.RemainingAt(c.now())
	if remaining <= 0 {
		return c.fail(op, b.ID, bet.NewError(op, bet.ErrInvalidState, "bet expired", nil))
	}
	if remaining < c.minRemain {
		return c.fail(op, b.ID, bet.NewError(op, bet.ErrInvalidState,
			"bet expires in "+remaining.Truncate(time.Second).String(), nil))
	}
	if _, err := bet.PriceToWire(price); err != nil {
		return c.fail(op, b.ID, bet.NewError(op, bet.ErrPreconditionUnmet, "price", err))
	}

	h, player, err := c.signer(op)
	if err != nil {
		return c.fail(op, b.ID, err)
	}
	if b.PredictionA != nil && b.PredictionA.Player.Equals(player) {
		return c.fail(op, b.ID, bet.NewError(op, bet.ErrPreconditionUnmet, "creator cannot enter own bet", nil))
	}

	betAddr, err := c.deriver.Bet(b.ID)
	if err != nil {
		return c.fail(op, b.ID, err)
	}
	rcpt, err := h.Submit(ctx, program.EnterBet{BetID: b.ID, Bet: betAddr, Player: player, Price: price})
	if err != nil {
		return c.fail(op, b.ID, classify(op, err))
	}

	c.src.Refresh(syncstore.KindBets)
	return c.succeed(ctx, op, b.ID, betAddr, player, rcpt, b.Amount, price), nil
}

// CloseBet encerra uma aposta com as duas posições; só participantes podem fechar
func (c *Controller) CloseBet(ctx context.Context, b bet.Bet) (Result, error) {
	const op = events.OpClose

	if err := requireState(op, b, bet.StateEntered); err != nil {
		return c.fail(op, b.ID, err)
	}
	h, player, err := c.signer(op)
	if err != nil {
		return c.fail(op, b.ID, err)
	}
	if !b.IsParticipant(player) {
		return c.fail(op, b.ID, bet.NewError(op, bet.ErrPreconditionUnmet, "caller is not a participant", nil))
	}

	betAddr, err := c.deriver.Bet(b.ID)
	if err != nil {
		return c.fail(op, b.ID, err)
	}
	rcpt, err := h.Submit(ctx, program.CloseBet{BetID: b.ID, Bet: betAddr, Player: player})
	if err != nil {
		return c.fail(op, b.ID, classify(op, err))
	}

	c.src.Refresh(syncstore.KindBets)
	return c.succeed(ctx, op, b.ID, betAddr, player, rcpt, 0, decimal.Decimal{}), nil
}

// ClaimBet liquida uma aposta fechada. Sem preço no oráculo nada é enviado.
func (c *Controller) ClaimBet(ctx context.Context, b bet.Bet) (Result, error) {
	const op = events.OpClaim

	if err := requireState(op, b, bet.StateClosed); err != nil {
		return c.fail(op, b.ID, err)
	}
	if b.PredictionA == nil || b.PredictionB == nil {
		return c.fail(op, b.ID, bet.NewError(op, bet.ErrInvalidState, "bet is missing a participant", nil))
	}
	h, signer, err := c.signer(op)
	if err != nil {
		return c.fail(op, b.ID, err)
	}

	quote, err := c.oracle.Price(ctx, b.OracleKey)
	if err != nil {
		return c.fail(op, b.ID, bet.NewError(op, bet.ErrOracleUnavailable, b.OracleKey.String(), err))
	}
	c.log.Debug("oracle price for claim", zap.Uint64("bet_id", b.ID), zap.String("price", quote.Price.String()))

	betAddr, err := c.deriver.Bet(b.ID)
	if err != nil {
		return c.fail(op, b.ID, err)
	}
	rcpt, err := h.Submit(ctx, program.ClaimBet{
		BetID:   b.ID,
		Bet:     betAddr,
		Oracle:  b.OracleKey,
		PlayerA: b.PredictionA.Player,
		PlayerB: b.PredictionB.Player,
		Signer:  signer,
	})
	if err != nil {
		return c.fail(op, b.ID, classify(op, err))
	}

	c.src.Refresh(syncstore.KindBets)
	return c.succeed(ctx, op, b.ID, betAddr, signer, rcpt, 0, quote.Price), nil
}

func requireState(op string, b bet.Bet, want bet.State) error {
	if b.State == want {
		return nil
	}
	reason := "bet " + b.State.String() + ", expected " + want.String()
	if b.State.Terminal() {
		reason = "bet is " + b.State.String() + " (terminal)"
	}
	return bet.NewError(op, bet.ErrInvalidState, reason, nil)
}

// signer devolve o handle atual e a identidade que vai assinar
func (c *Controller) signer(op string) (program.Handle, solana.PublicKey, error) {
	h, err := c.src.Handle()
	if err != nil {
		return nil, solana.PublicKey{}, bet.NewError(op, bet.ErrPreconditionUnmet, "not connected", nil)
	}
	id, ok := h.Identity()
	if !ok {
		return nil, solana.PublicKey{}, bet.NewError(op, bet.ErrPreconditionUnmet, "no identity", nil)
	}
	return h, id, nil
}

// classify garante que toda falha remota carregue um tipo da taxonomia
func classify(op string, err error) error {
	if bet.KindOf(err) != nil {
		return err
	}
	return bet.NewError(op, bet.ErrUnavailable, "", err)
}

// fail registra a falha, avisa o notifier e devolve o erro já classificado
func (c *Controller) fail(op string, id uint64, err error) (Result, error) {
	outcome := "error"
	if k := bet.KindOf(err); k != nil {
		outcome = k.Error()
	}
	c.onOutcome(op, outcome)
	c.log.Warn("lifecycle operation failed", zap.String("op", op), zap.Uint64("bet_id", id), zap.Error(err))
	if c.notifier != nil {
		c.notifier.Notify(Outcome{Result: Result{Op: op, BetID: id}, Err: err})
	}
	return Result{}, err
}

func (c *Controller) succeed(ctx context.Context, op string, id uint64, betAddr, actor solana.PublicKey,
	rcpt program.Receipt, amount uint64, price decimal.Decimal) Result {
	res := Result{Op: op, BetID: id, Receipt: rcpt}
	c.onOutcome(op, "ok")
	c.log.Info("lifecycle operation confirmed",
		zap.String("op", op),
		zap.Uint64("bet_id", id),
		zap.Stringer("signature", rcpt.Signature),
		zap.Uint64("slot", rcpt.Slot),
	)
	if c.notifier != nil {
		c.notifier.Notify(Outcome{Result: res})
	}
	if c.publisher == nil {
		return res
	}

	ev := events.BetLifecycle{
		EventID:    uuid.NewString(),
		Op:         op,
		BetID:      id,
		BetAddress: betAddr.String(),
		Signature:  rcpt.Signature.String(),
		Slot:       rcpt.Slot,
		Actor:      actor.String(),
		Amount:     amount,
		Ts:         c.now().UTC(),
	}
	if !price.IsZero() {
		ev.Price = price.String()
	}
	// a transação já está no ledger: falha de publicação só é logada
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.publisher.PublishLifecycle(pctx, ev); err != nil {
		c.log.Warn("lifecycle event publish failed", zap.String("event_id", ev.EventID), zap.Error(err))
	}
	return res
}
