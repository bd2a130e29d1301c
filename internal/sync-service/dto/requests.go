package dto

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

type CreateBetRequest struct {
	Amount      uint64           `json:"amount"`      // stake em unidade mínima
	TargetPrice decimal.Decimal  `json:"targetPrice"` // até 8 casas decimais
	Duration    uint32           `json:"duration"`    // segundos
	OracleKey   solana.PublicKey `json:"oraclePriceKey"`
}

type EnterBetRequest struct {
	Price decimal.Decimal `json:"price"`
}
