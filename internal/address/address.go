// Package address deriva os endereços determinísticos (PDA) das contas do programa de apostas.
// Nenhuma função aqui faz I/O: o mesmo input sempre gera o mesmo endereço.
package address

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/radieske/prediction-bet-sync/internal/bet"
)

// Seeds literais definidas pelo programa on-chain
var (
	SeedMaster = []byte("master")
	SeedBet    = []byte("bet")
)

// Derive encontra o endereço derivado (e o bump) para as seeds dentro do namespace do programa.
// Erros de seed são reportados como bet.ErrInvalidSeed, sem fallback.
func Derive(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	if len(seeds) > solana.MaxSeeds-1 { // uma posição fica reservada para o bump
		return solana.PublicKey{}, 0, bet.NewError("derive", bet.ErrInvalidSeed,
			fmt.Sprintf("%d seeds, max %d", len(seeds), solana.MaxSeeds-1), nil)
	}
	for i, s := range seeds {
		if len(s) > solana.MaxSeedLength {
			return solana.PublicKey{}, 0, bet.NewError("derive", bet.ErrInvalidSeed,
				fmt.Sprintf("seed %d has %d bytes, max %d", i, len(s), solana.MaxSeedLength), nil)
		}
	}
	addr, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, bet.NewError("derive", bet.ErrInvalidSeed, "", err)
	}
	return addr, bump, nil
}

// BetIDSeed codifica o id da aposta em 8 bytes little-endian
func BetIDSeed(id uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, id)
	return b
}

// Deriver amarra a derivação a um programa específico
type Deriver struct {
	ProgramID solana.PublicKey
}

func NewDeriver(programID solana.PublicKey) Deriver { return Deriver{ProgramID: programID} }

// Master retorna o endereço da conta master
func (d Deriver) Master() (solana.PublicKey, error) {
	addr, _, err := Derive([][]byte{SeedMaster}, d.ProgramID)
	return addr, err
}

// Bet retorna o endereço da conta de aposta com o id informado
func (d Deriver) Bet(id uint64) (solana.PublicKey, error) {
	addr, _, err := Derive([][]byte{SeedBet, BetIDSeed(id)}, d.ProgramID)
	return addr, err
}
