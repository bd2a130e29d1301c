package program

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/radieske/prediction-bet-sync/internal/bet"
)

// Layout das contas e instruções segue a IDL do programa (Anchor):
// 8 bytes de discriminador + campos Borsh na ordem de declaração.

const discriminatorLen = 8

// discriminator calcula sha256("<namespace>:<name>")[:8]
func discriminator(namespace, name string) [discriminatorLen]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [discriminatorLen]byte
	copy(d[:], sum[:discriminatorLen])
	return d
}

var (
	masterDiscriminator = discriminator("account", "Master")
	betDiscriminator    = discriminator("account", "Bet")
)

type wireMaster struct {
	LastBetID uint64
}

type wirePrediction struct {
	Player solana.PublicKey
	Stake  uint64
	Price  int64
}

type wireBet struct {
	ID          uint64
	Amount      uint64
	TargetPrice int64
	Duration    uint32
	OracleKey   solana.PublicKey
	PredictionA *wirePrediction `bin:"optional"`
	PredictionB *wirePrediction `bin:"optional"`
	State       uint8
	CreatedAt   int64
}

func checkDiscriminator(data []byte, want [discriminatorLen]byte, kind string) error {
	if len(data) < discriminatorLen {
		return fmt.Errorf("%s account: %d bytes, too short", kind, len(data))
	}
	if !bytes.Equal(data[:discriminatorLen], want[:]) {
		return fmt.Errorf("%s account: discriminator mismatch", kind)
	}
	return nil
}

// DecodeMaster decodifica os bytes da conta master
func DecodeMaster(data []byte) (bet.Master, error) {
	if err := checkDiscriminator(data, masterDiscriminator, "master"); err != nil {
		return bet.Master{}, err
	}
	var w wireMaster
	if err := bin.NewBorshDecoder(data[discriminatorLen:]).Decode(&w); err != nil {
		return bet.Master{}, fmt.Errorf("decode master: %w", err)
	}
	return bet.Master{LastBetID: w.LastBetID}, nil
}

// DecodeBet decodifica os bytes de uma conta de aposta; address é o endereço de onde ela foi lida
func DecodeBet(address solana.PublicKey, data []byte) (bet.Bet, error) {
	if err := checkDiscriminator(data, betDiscriminator, "bet"); err != nil {
		return bet.Bet{}, err
	}
	var w wireBet
	if err := bin.NewBorshDecoder(data[discriminatorLen:]).Decode(&w); err != nil {
		return bet.Bet{}, fmt.Errorf("decode bet: %w", err)
	}
	st := bet.State(w.State)
	if !st.Valid() {
		return bet.Bet{}, fmt.Errorf("decode bet %d: unknown state %d", w.ID, w.State)
	}
	return bet.Bet{
		Address:     address,
		ID:          w.ID,
		Amount:      w.Amount,
		TargetPrice: bet.PriceFromWire(w.TargetPrice),
		Duration:    w.Duration,
		OracleKey:   w.OracleKey,
		PredictionA: predictionFromWire(w.PredictionA),
		PredictionB: predictionFromWire(w.PredictionB),
		State:       st,
		CreatedAt:   w.CreatedAt,
	}, nil
}

func predictionFromWire(w *wirePrediction) *bet.Prediction {
	if w == nil {
		return nil
	}
	return &bet.Prediction{Player: w.Player, Stake: w.Stake, Price: bet.PriceFromWire(w.Price)}
}

func predictionToWire(p *bet.Prediction) (*wirePrediction, error) {
	if p == nil {
		return nil, nil
	}
	price, err := bet.PriceToWire(p.Price)
	if err != nil {
		return nil, err
	}
	return &wirePrediction{Player: p.Player, Stake: p.Stake, Price: price}, nil
}

// EncodeMaster gera os bytes da conta master (usado pelo programa em memória e em testes)
func EncodeMaster(m bet.Master) ([]byte, error) {
	return encodeAccount(masterDiscriminator, wireMaster{LastBetID: m.LastBetID})
}

// EncodeBet gera os bytes de uma conta de aposta
func EncodeBet(b bet.Bet) ([]byte, error) {
	target, err := bet.PriceToWire(b.TargetPrice)
	if err != nil {
		return nil, err
	}
	pa, err := predictionToWire(b.PredictionA)
	if err != nil {
		return nil, err
	}
	pb, err := predictionToWire(b.PredictionB)
	if err != nil {
		return nil, err
	}
	return encodeAccount(betDiscriminator, wireBet{
		ID:          b.ID,
		Amount:      b.Amount,
		TargetPrice: target,
		Duration:    b.Duration,
		OracleKey:   b.OracleKey,
		PredictionA: pa,
		PredictionB: pb,
		State:       uint8(b.State),
		CreatedAt:   b.CreatedAt,
	})
}

func encodeAccount(disc [discriminatorLen]byte, v any) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeInstruction monta os dados de instrução: discriminador global + args Borsh
func encodeInstruction(name string, args any) ([]byte, error) {
	disc := discriminator("global", name)
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if args != nil {
		if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
			return nil, fmt.Errorf("encode %s args: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}
