// Package marketdata busca séries de preço de criptoativos para a camada de apresentação.
// Não participa do ciclo de vida das apostas.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Record é o resumo de um ativo: último preço, variação da última hora (%) e a série
type Record struct {
	Name   string            `json:"name"`
	Symbol string            `json:"symbol"`
	Price  decimal.Decimal   `json:"price"`
	Change decimal.Decimal   `json:"change"`
	Data   []decimal.Decimal `json:"data"`
}

// Cache guarda o último lote de records
type Cache interface {
	Get(ctx context.Context, dst any) (bool, error)
	Set(ctx context.Context, v any) error
}

// Client consulta o endpoint market_chart (formato CoinGecko)
type Client struct {
	BaseURL    string
	HTTP       *http.Client
	Symbols    []string
	VsCurrency string
	Days       int
	Cache      Cache // opcional
	Log        *zap.Logger
}

func New(base string, symbols []string, days int) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(base, "/"),
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		Symbols:    symbols,
		VsCurrency: "usd",
		Days:       days,
		Log:        zap.NewNop(),
	}
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"` // [timestamp_ms, price]
}

// Records devolve um record por símbolo, na ordem configurada.
// O lote é tudo ou nada: qualquer falha de busca falha o lote inteiro.
func (c *Client) Records(ctx context.Context) ([]Record, error) {
	if c.Cache != nil {
		var cached []Record
		if ok, err := c.Cache.Get(ctx, &cached); err == nil && ok {
			return cached, nil
		} else if err != nil {
			c.Log.Warn("market data cache read failed", zap.Error(err))
		}
	}

	out := make([]Record, len(c.Symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range c.Symbols {
		g.Go(func() error {
			series, err := c.fetchSeries(gctx, sym)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			out[i] = Summarize(sym, series)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if err := c.Cache.Set(ctx, out); err != nil {
			c.Log.Warn("market data cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

func (c *Client) fetchSeries(ctx context.Context, symbol string) ([]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("vs_currency", c.VsCurrency)
	q.Set("days", strconv.Itoa(c.Days))
	u := fmt.Sprintf("%s/coins/%s/market_chart?%s", c.BaseURL, url.PathEscape(symbol), q.Encode())

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("Accept", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("market_chart http %d", res.StatusCode)
	}

	var chart marketChart
	if err := json.NewDecoder(res.Body).Decode(&chart); err != nil {
		return nil, err
	}
	series := make([]decimal.Decimal, len(chart.Prices))
	for i, p := range chart.Prices {
		series[i] = decimal.NewFromFloat(p[1])
	}
	return series, nil
}

// Summarize monta o record a partir da série. Com menos de dois pontos a variação é zero
// e a série parcial é mantida.
func Summarize(symbol string, series []decimal.Decimal) Record {
	r := Record{Name: displayName(symbol), Symbol: symbol, Data: series, Change: decimal.Zero}
	if r.Data == nil {
		r.Data = []decimal.Decimal{}
	}
	n := len(series)
	if n == 0 {
		return r
	}
	r.Price = series[n-1]
	if n < 2 || series[n-2].IsZero() {
		return r
	}
	prev := series[n-2]
	r.Change = r.Price.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
	return r
}

func displayName(symbol string) string {
	if symbol == "" {
		return ""
	}
	return strings.ToUpper(symbol[:1]) + symbol[1:]
}
