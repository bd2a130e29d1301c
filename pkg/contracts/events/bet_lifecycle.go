package events

import "time"

// Operações do ciclo de vida
const (
	OpCreate = "create"
	OpEnter  = "enter"
	OpClose  = "close"
	OpClaim  = "claim"
)

// Evento publicado no tópico "bet_lifecycle" depois de cada transação confirmada.
// Amount e Price vão como string decimal para não perder precisão.
type BetLifecycle struct {
	EventID    string    `json:"event_id"` // uuid, chave de idempotência no journal
	Op         string    `json:"op"`
	BetID      uint64    `json:"bet_id"`
	BetAddress string    `json:"bet_address"`
	Signature  string    `json:"signature"`
	Slot       uint64    `json:"slot"`
	Actor      string    `json:"actor"`
	Amount     uint64    `json:"amount,omitempty"`
	Price      string    `json:"price,omitempty"`
	Ts         time.Time `json:"ts"`
}
