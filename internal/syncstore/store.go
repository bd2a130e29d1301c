// Package syncstore mantém o espelho local das contas do programa e decide quando buscá-las de novo.
//
// Gatilhos:
//   - troca de conexão ou de identidade: recria o handle e invalida tudo (SetConnection, SetSigner)
//   - handle disponível e snapshot não carregado: busca (Reconcile)
//   - mutação confirmada: busca explícita (Refresh)
//
// Cada tipo tem no máximo uma busca em voo. Pedidos que chegam durante a busca se juntam
// em uma única busca de seguimento.
package syncstore

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/bet"
	"github.com/radieske/prediction-bet-sync/internal/program"
)

// Factory cria o handle para a conexão e o signer atuais; signer nil significa somente leitura
type Factory func(conn Connection, signer solana.PrivateKey) (program.Handle, error)

// Store é o contexto explícito de sincronização. Seguro para uso concorrente.
type Store struct {
	factory      Factory
	log          *zap.Logger
	fetchTimeout time.Duration

	// callbacks de observabilidade (métricas), opcionais
	onFetch    func(kind Kind, outcome string)
	onInFlight func(kind Kind, delta int)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	conn     *Connection
	signer   solana.PrivateKey
	handle   program.Handle
	epoch    uint64
	version  uint64
	master   Snapshot[bet.Master]
	bets     Snapshot[[]bet.Bet]
	inFlight map[Kind]bool
	pending  map[Kind]bool
	subs     map[int]chan State
	nextSub  int
}

// Option customiza o Store
type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithFetchTimeout limita cada busca individual
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) { s.fetchTimeout = d }
}

// WithFetchObserver recebe o resultado de cada busca: "ok", "error" ou "discarded"
func WithFetchObserver(fn func(kind Kind, outcome string)) Option {
	return func(s *Store) { s.onFetch = fn }
}

// WithInFlightObserver recebe +1/-1 quando uma busca começa/termina
func WithInFlightObserver(fn func(kind Kind, delta int)) Option {
	return func(s *Store) { s.onInFlight = fn }
}

// New cria um Store sem conexão; nada é buscado até SetConnection
func New(factory Factory, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		factory:      factory,
		log:          zap.NewNop(),
		fetchTimeout: 30 * time.Second,
		onFetch:      func(Kind, string) {},
		onInFlight:   func(Kind, int) {},
		ctx:          ctx,
		cancel:       cancel,
		inFlight:     make(map[Kind]bool),
		pending:      make(map[Kind]bool),
		subs:         make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resetLocked()
	return s
}

// SetConnection troca a conexão; nil desconecta
func (s *Store) SetConnection(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if conn != nil {
		c := *conn
		conn = &c
	}
	s.conn = conn
	s.rebuildLocked("connection changed")
}

// SetSigner troca a identidade; nil volta para somente leitura
func (s *Store) SetSigner(signer solana.PrivateKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.signer = signer
	s.rebuildLocked("identity changed")
}

// Disconnect descarta handle e snapshots
func (s *Store) Disconnect() { s.SetConnection(nil) }

// Close cancela as buscas em voo, espera terminarem e fecha as assinaturas
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.epoch++
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

// Reconcile busca todo tipo ainda não carregado, se houver handle
func (s *Store) Reconcile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconcileLocked() {
		s.publishLocked()
	}
}

// Refresh força nova busca dos tipos informados (todos, se nenhum).
// Se já houver busca em voo, agenda uma única busca de seguimento.
func (s *Store) Refresh(kinds ...Kind) {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.handle == nil {
		return
	}
	changed := false
	for _, k := range kinds {
		if s.inFlight[k] {
			s.pending[k] = true
			continue
		}
		s.startFetchLocked(k)
		changed = true
	}
	if changed {
		s.publishLocked()
	}
}

// Snapshot devolve o estado atual
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Handle devolve o handle atual ou ErrPreconditionUnmet se não houver conexão
func (s *Store) Handle() (program.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil, bet.NewError("handle", bet.ErrPreconditionUnmet, "not connected", nil)
	}
	return s.handle, nil
}

// Subscribe entrega o estado atual e cada mudança seguinte. Consumidores lentos
// recebem só o estado mais recente. cancel encerra a assinatura.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.stateLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Store) resetLocked() {
	s.master = Snapshot[bet.Master]{Status: StatusNotLoaded}
	s.bets = Snapshot[[]bet.Bet]{Status: StatusNotLoaded}
	s.inFlight = make(map[Kind]bool)
	s.pending = make(map[Kind]bool)
}

// rebuildLocked invalida tudo: buscas iniciadas em épocas anteriores serão descartadas
func (s *Store) rebuildLocked(reason string) {
	s.epoch++
	s.handle = nil
	s.resetLocked()

	if s.conn != nil {
		h, err := s.factory(*s.conn, s.signer)
		if err != nil {
			s.log.Warn("handle rebuild failed", zap.String("reason", reason), zap.Error(err))
			wrapped := bet.NewError("connect", bet.ErrUnavailable, "", err)
			s.master = Snapshot[bet.Master]{Status: StatusUnavailable, Error: wrapped.Error(), err: wrapped}
			s.bets = Snapshot[[]bet.Bet]{Status: StatusUnavailable, Error: wrapped.Error(), err: wrapped}
		} else {
			s.handle = h
		}
	}
	s.log.Info("sync context rebuilt",
		zap.String("reason", reason),
		zap.Uint64("epoch", s.epoch),
		zap.Bool("connected", s.handle != nil),
	)
	s.reconcileLocked()
	s.publishLocked()
}

func (s *Store) reconcileLocked() bool {
	if s.closed || s.handle == nil {
		return false
	}
	started := false
	if s.master.Status == StatusNotLoaded && !s.inFlight[KindMaster] {
		s.startFetchLocked(KindMaster)
		started = true
	}
	if s.bets.Status == StatusNotLoaded && !s.inFlight[KindBets] {
		s.startFetchLocked(KindBets)
		started = true
	}
	return started
}

func (s *Store) startFetchLocked(k Kind) {
	s.inFlight[k] = true
	s.onInFlight(k, 1)
	switch k {
	case KindMaster:
		if s.master.Status != StatusReady {
			s.master.Status = StatusLoading
		}
	case KindBets:
		if s.bets.Status != StatusReady {
			s.bets.Status = StatusLoading
		}
	}

	epoch, h := s.epoch, s.handle
	s.wg.Add(1)
	go s.fetch(k, epoch, h)
}

func (s *Store) fetch(k Kind, epoch uint64, h program.Handle) {
	defer s.wg.Done()
	defer s.onInFlight(k, -1)

	ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
	defer cancel()

	var (
		master bet.Master
		bets   []bet.Bet
		err    error
	)
	switch k {
	case KindMaster:
		master, err = h.FetchMaster(ctx)
	case KindBets:
		bets, err = h.FetchAllBets(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		s.onFetch(k, "discarded")
		s.log.Debug("discarding fetch from previous context", zap.String("kind", string(k)), zap.Uint64("epoch", epoch))
		return
	}
	s.inFlight[k] = false

	now := time.Now()
	if err != nil {
		s.onFetch(k, "error")
		s.log.Warn("fetch failed", zap.String("kind", string(k)), zap.Error(err))
		if bet.KindOf(err) == nil {
			err = bet.NewError("fetch "+string(k), bet.ErrUnavailable, "", err)
		}
		switch k {
		case KindMaster:
			s.master = Snapshot[bet.Master]{Status: StatusUnavailable, Error: err.Error(), FetchedAt: now, err: err}
		case KindBets:
			s.bets = Snapshot[[]bet.Bet]{Status: StatusUnavailable, Error: err.Error(), FetchedAt: now, err: err}
		}
	} else {
		s.onFetch(k, "ok")
		switch k {
		case KindMaster:
			s.master = Snapshot[bet.Master]{Status: StatusReady, Value: master, FetchedAt: now}
		case KindBets:
			if bets == nil {
				bets = []bet.Bet{}
			}
			s.bets = Snapshot[[]bet.Bet]{Status: StatusReady, Value: bets, FetchedAt: now}
		}
	}

	if s.pending[k] && !s.closed {
		s.pending[k] = false
		s.startFetchLocked(k)
	}
	s.publishLocked()
}

func (s *Store) stateLocked() State {
	st := State{
		Master:  s.master,
		Bets:    s.bets,
		Version: s.version,
	}
	if s.conn != nil {
		c := *s.conn
		st.Connection = &c
	}
	if s.handle != nil {
		if id, ok := s.handle.Identity(); ok {
			st.Identity = &id
		}
	} else if len(s.signer) > 0 {
		id := s.signer.PublicKey()
		st.Identity = &id
	}
	return st
}

func (s *Store) publishLocked() {
	s.version++
	st := s.stateLocked()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

