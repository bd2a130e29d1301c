package program

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/radieske/prediction-bet-sync/internal/bet"
)

// Nomes das instruções do programa (snake_case, como na IDL)
const (
	NameCreateBet = "create_bet"
	NameEnterBet  = "enter_bet"
	NameCloseBet  = "close_bet"
	NameClaimBet  = "claim_bet"
)

// Instruction é uma transição de estado tipada. Só o Client transforma isso em bytes.
type Instruction interface {
	Name() string
	Build(programID solana.PublicKey) (solana.Instruction, error)
}

// CreateBet cria a aposta BetID; Bet e Master são endereços derivados
type CreateBet struct {
	BetID       uint64
	Bet         solana.PublicKey
	Master      solana.PublicKey
	Player      solana.PublicKey
	Amount      uint64
	TargetPrice decimal.Decimal
	Duration    uint32
	OracleKey   solana.PublicKey
}

type createBetArgs struct {
	Amount    uint64
	Price     int64
	Duration  uint32
	OracleKey solana.PublicKey
}

func (CreateBet) Name() string { return NameCreateBet }

func (ix CreateBet) Build(programID solana.PublicKey) (solana.Instruction, error) {
	price, err := bet.PriceToWire(ix.TargetPrice)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstruction(NameCreateBet, createBetArgs{
		Amount:    ix.Amount,
		Price:     price,
		Duration:  ix.Duration,
		OracleKey: ix.OracleKey,
	})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(ix.Bet, true, false),
		solana.NewAccountMeta(ix.Master, true, false),
		solana.NewAccountMeta(ix.Player, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, data), nil
}

// EnterBet posiciona o jogador como contraparte
type EnterBet struct {
	BetID  uint64
	Bet    solana.PublicKey
	Player solana.PublicKey
	Price  decimal.Decimal
}

type enterBetArgs struct {
	Price int64
}

func (EnterBet) Name() string { return NameEnterBet }

func (ix EnterBet) Build(programID solana.PublicKey) (solana.Instruction, error) {
	price, err := bet.PriceToWire(ix.Price)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstruction(NameEnterBet, enterBetArgs{Price: price})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(ix.Bet, true, false),
		solana.NewAccountMeta(ix.Player, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, data), nil
}

// CloseBet encerra uma aposta já com as duas posições
type CloseBet struct {
	BetID  uint64
	Bet    solana.PublicKey
	Player solana.PublicKey
}

func (CloseBet) Name() string { return NameCloseBet }

func (ix CloseBet) Build(programID solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstruction(NameCloseBet, nil)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(ix.Bet, true, false),
		solana.NewAccountMeta(ix.Player, true, true),
	}, data), nil
}

// ClaimBet liquida a aposta usando o preço do oráculo
type ClaimBet struct {
	BetID   uint64
	Bet     solana.PublicKey
	Oracle  solana.PublicKey
	PlayerA solana.PublicKey
	PlayerB solana.PublicKey
	Signer  solana.PublicKey
}

func (ClaimBet) Name() string { return NameClaimBet }

func (ix ClaimBet) Build(programID solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstruction(NameClaimBet, nil)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(ix.Bet, true, false),
		solana.NewAccountMeta(ix.Oracle, false, false),
		solana.NewAccountMeta(ix.PlayerA, true, false),
		solana.NewAccountMeta(ix.PlayerB, true, false),
		solana.NewAccountMeta(ix.Signer, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, data), nil
}
