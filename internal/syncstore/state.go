package syncstore

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/radieske/prediction-bet-sync/internal/bet"
)

// Kind identifica cada espelho local de conta remota
type Kind string

const (
	KindMaster Kind = "master"
	KindBets   Kind = "bets"
)

// Kinds lista todos os tipos, na ordem em que são buscados
var Kinds = []Kind{KindMaster, KindBets}

// Status do snapshot. Unavailable é diferente de NotLoaded: houve tentativa e ela falhou.
type Status string

const (
	StatusNotLoaded   Status = "not_loaded"
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
)

// Snapshot é a última leitura completa de um tipo de conta
type Snapshot[T any] struct {
	Status    Status    `json:"status"`
	Value     T         `json:"value"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`

	err error
}

// Err devolve o erro da última busca (com a taxonomia preservada)
func (s Snapshot[T]) Err() error { return s.err }

// Ready indica que Value contém uma leitura válida
func (s Snapshot[T]) Ready() bool { return s.Status == StatusReady }

// Connection descreve o endpoint e o programa do ledger
type Connection struct {
	Endpoint  string           `json:"endpoint"`
	ProgramID solana.PublicKey `json:"programId"`
}

// State é a visão local somente leitura entregue aos consumidores
type State struct {
	Connection *Connection          `json:"connection,omitempty"`
	Identity   *solana.PublicKey    `json:"identity,omitempty"`
	Master     Snapshot[bet.Master] `json:"master"`
	Bets       Snapshot[[]bet.Bet]  `json:"bets"`
	Version    uint64               `json:"version"`
}

// Bet procura uma aposta no snapshot pelo id
func (st State) Bet(id uint64) (bet.Bet, bool) {
	for _, b := range st.Bets.Value {
		if b.ID == id {
			return b, true
		}
	}
	return bet.Bet{}, false
}
