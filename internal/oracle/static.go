package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/radieske/prediction-bet-sync/internal/bet"
)

// Static é um Source com preços fixos, usado no modo em memória
type Static struct {
	mu     sync.RWMutex
	prices map[solana.PublicKey]decimal.Decimal
}

func NewStatic() *Static {
	return &Static{prices: make(map[solana.PublicKey]decimal.Decimal)}
}

// Set publica (ou troca) o preço de um feed
func (s *Static) Set(feed solana.PublicKey, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[feed] = price
	s.mu.Unlock()
}

// Unset remove o preço, simulando feed indisponível
func (s *Static) Unset(feed solana.PublicKey) {
	s.mu.Lock()
	delete(s.prices, feed)
	s.mu.Unlock()
}

// Lookup tem a assinatura de memory.PriceFunc
func (s *Static) Lookup(feed solana.PublicKey) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[feed]
	return p, ok
}

func (s *Static) Price(_ context.Context, feed solana.PublicKey) (Quote, error) {
	p, ok := s.Lookup(feed)
	if !ok {
		return Quote{}, bet.NewError("oracle", bet.ErrOracleUnavailable, "no price for "+feed.String(), nil)
	}
	return Quote{Price: p, PublishTime: time.Now()}, nil
}
