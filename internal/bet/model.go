package bet

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// State é o estado de uma aposta no programa on-chain
type State uint8

const (
	StateOpen State = iota
	StateEntered
	StateClosed
	StateClaimed
	StateExpired
)

var stateNames = [...]string{"open", "entered", "closed", "claimed", "expired"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal indica estados finais (claimed/expired); nenhuma operação é permitida a partir deles
func (s State) Terminal() bool { return s == StateClaimed || s == StateExpired }

// Valid indica se o valor corresponde a um estado conhecido do programa
func (s State) Valid() bool { return int(s) < len(stateNames) }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseState converte o nome textual ("open", "entered", ...) para State
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown bet state %q", name)
}

// Master é o snapshot da conta singleton que guarda o último id de aposta emitido
type Master struct {
	LastBetID uint64 `json:"lastBetId"`
}

// NextBetID é o id que a próxima create_bet confirmada vai receber
func (m Master) NextBetID() uint64 { return m.LastBetID + 1 }

// Prediction é a posição de um jogador numa aposta
type Prediction struct {
	Player solana.PublicKey `json:"player"`
	Stake  uint64           `json:"stake"`
	Price  decimal.Decimal  `json:"price"`
}

// Bet é o snapshot de uma conta de aposta, decodificado uma única vez na borda do client
type Bet struct {
	Address     solana.PublicKey `json:"address"`
	ID          uint64           `json:"id"`
	Amount      uint64           `json:"amount"`
	TargetPrice decimal.Decimal  `json:"targetPrice"`
	Duration    uint32           `json:"duration"` // segundos até expirar
	OracleKey   solana.PublicKey `json:"oraclePriceKey"`
	PredictionA *Prediction      `json:"predictionA,omitempty"`
	PredictionB *Prediction      `json:"predictionB,omitempty"`
	State       State            `json:"state"`
	CreatedAt   int64            `json:"creationTimestamp"` // unix seconds
}

// ExpiresAt retorna o instante de expiração (criação + duração)
func (b Bet) ExpiresAt() time.Time {
	return time.Unix(b.CreatedAt, 0).Add(time.Duration(b.Duration) * time.Second)
}

// RemainingAt retorna quanto tempo falta para expirar; negativo se já expirou
func (b Bet) RemainingAt(now time.Time) time.Duration { return b.ExpiresAt().Sub(now) }

// IsParticipant indica se a chave é um dos jogadores já posicionados
func (b Bet) IsParticipant(key solana.PublicKey) bool {
	if b.PredictionA != nil && b.PredictionA.Player.Equals(key) {
		return true
	}
	return b.PredictionB != nil && b.PredictionB.Player.Equals(key)
}
