package marketdata

import (
	"context"

	"github.com/shopspring/decimal"
)

// Source é qualquer fornecedor de records (client HTTP, lista fixa, combinação)
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

var (
	_ Source = (*Client)(nil)
	_ Source = Static(nil)
	_ Source = Merged(nil)
)

// Static devolve sempre os mesmos records; cópia a cada chamada
type Static []Record

func (s Static) Records(context.Context) ([]Record, error) {
	out := make([]Record, len(s))
	for i, r := range s {
		r.Data = append([]decimal.Decimal(nil), r.Data...)
		out[i] = r
	}
	return out, nil
}

// Stocks é a lista fixa de ações exibida ao lado das criptos (sem fonte remota)
func Stocks() Static {
	return Static{
		stock("AAPL", 150, "1.24", 140, 145, 150, 155, 150),
		stock("GOOGL", 2800, "-0.67", 2750, 2780, 2800, 2820, 2800),
		stock("AMZN", 3400, "0.98", 3300, 3350, 3400, 3450, 3400),
		stock("MSFT", 299, "0.45", 290, 295, 299, 303, 299),
	}
}

func stock(symbol string, price int64, change string, series ...int64) Record {
	data := make([]decimal.Decimal, len(series))
	for i, p := range series {
		data[i] = decimal.NewFromInt(p)
	}
	return Record{
		Name:   symbol,
		Symbol: symbol,
		Price:  decimal.NewFromInt(price),
		Change: decimal.RequireFromString(change),
		Data:   data,
	}
}

// Merged concatena as fontes na ordem dada; a primeira falha derruba o lote
type Merged []Source

func (m Merged) Records(ctx context.Context) ([]Record, error) {
	var out []Record
	for _, src := range m {
		recs, err := src.Records(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}
