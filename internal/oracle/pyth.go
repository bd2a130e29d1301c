// Package oracle lê o preço de liquidação das contas de price feed (Pyth v2) usadas no claim.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/radieske/prediction-bet-sync/internal/bet"
)

const (
	pythMagic        uint32 = 0xa1b2c3d4
	pythVersion      uint32 = 2
	pythAccountPrice uint32 = 3
	pythStatusTrade  uint32 = 1

	priceAccountLen = 240
)

// Quote é o preço agregado publicado pelo feed
type Quote struct {
	Price       decimal.Decimal `json:"price"`
	Confidence  decimal.Decimal `json:"confidence"`
	PublishTime time.Time       `json:"publishTime"`
	Slot        uint64          `json:"slot"`
}

// Source é qualquer coisa capaz de devolver o preço atual de um feed
type Source interface {
	Price(ctx context.Context, feed solana.PublicKey) (Quote, error)
}

// priceAccount cobre o cabeçalho e o agregado da conta de preço Pyth v2 (little-endian)
type priceAccount struct {
	Magic         uint32
	Version       uint32
	AccountType   uint32
	Size          uint32
	PriceType     uint32
	Exponent      int32
	NumComponents uint32
	NumQuoters    uint32
	LastSlot      uint64
	ValidSlot     uint64
	EMAPrice      [24]byte
	EMAConf       [24]byte
	Timestamp     int64
	MinPublishers uint8
	Reserved      [7]byte
	Product       solana.PublicKey
	Next          solana.PublicKey
	PrevSlot      uint64
	PrevPrice     int64
	PrevConf      uint64
	PrevTimestamp int64
	AggPrice      int64
	AggConf       uint64
	AggStatus     uint32
	AggCorpAct    uint32
	AggPubSlot    uint64
}

// DecodePrice interpreta os bytes de uma conta de preço. Feeds fora de "trading" viram ErrOracleUnavailable.
func DecodePrice(data []byte) (Quote, error) {
	if len(data) < priceAccountLen {
		return Quote{}, fmt.Errorf("price account: %d bytes, too short", len(data))
	}
	var acc priceAccount
	if err := bin.NewBinDecoder(data[:priceAccountLen]).Decode(&acc); err != nil {
		return Quote{}, fmt.Errorf("decode price account: %w", err)
	}
	if acc.Magic != pythMagic || acc.Version != pythVersion || acc.AccountType != pythAccountPrice {
		return Quote{}, fmt.Errorf("not a pyth v2 price account (magic=%x ver=%d type=%d)", acc.Magic, acc.Version, acc.AccountType)
	}
	if acc.AggStatus != pythStatusTrade {
		return Quote{}, bet.NewError("oracle", bet.ErrOracleUnavailable, fmt.Sprintf("feed status %d", acc.AggStatus), nil)
	}
	return Quote{
		Price:       decimal.New(acc.AggPrice, acc.Exponent),
		Confidence:  decimal.New(int64(acc.AggConf), acc.Exponent),
		PublishTime: time.Unix(acc.Timestamp, 0),
		Slot:        acc.AggPubSlot,
	}, nil
}

// AccountReader é o subconjunto do RPC usado para ler o feed
type AccountReader interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
}

// Reader lê feeds via RPC e recusa preços mais velhos que MaxAge
type Reader struct {
	rpc    AccountReader
	maxAge time.Duration
	now    func() time.Time
}

func NewReader(rpc AccountReader, maxAge time.Duration) *Reader {
	return &Reader{rpc: rpc, maxAge: maxAge, now: time.Now}
}

// Price retorna o preço atual do feed ou um erro ErrOracleUnavailable
func (r *Reader) Price(ctx context.Context, feed solana.PublicKey) (Quote, error) {
	res, err := r.rpc.GetAccountInfoWithOpts(ctx, feed, &solanarpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: solanarpc.CommitmentConfirmed,
	})
	if err != nil {
		reason := "read feed"
		if errors.Is(err, solanarpc.ErrNotFound) {
			reason = "feed account not found"
		}
		return Quote{}, bet.NewError("oracle", bet.ErrOracleUnavailable, reason, err)
	}
	q, err := DecodePrice(res.GetBinary())
	if err != nil {
		if errors.Is(err, bet.ErrOracleUnavailable) {
			return Quote{}, err
		}
		return Quote{}, bet.NewError("oracle", bet.ErrOracleUnavailable, "", err)
	}
	if r.maxAge > 0 && r.now().Sub(q.PublishTime) > r.maxAge {
		return Quote{}, bet.NewError("oracle", bet.ErrOracleUnavailable,
			fmt.Sprintf("stale price from %s", q.PublishTime.UTC().Format(time.RFC3339)), nil)
	}
	return q, nil
}
