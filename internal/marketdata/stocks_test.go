package marketdata

import (
	"context"
	"errors"
	"testing"
)

type failingSource struct{}

func (failingSource) Records(context.Context) ([]Record, error) {
	return nil, errors.New("upstream down")
}

func TestStocksShape(t *testing.T) {
	recs, err := Stocks().Records(context.Background())
	if err != nil {
		t.Fatalf("stocks: %v", err)
	}
	if len(recs) != 4 || recs[0].Name != "AAPL" || recs[3].Name != "MSFT" {
		t.Fatalf("unexpected stocks %+v", recs)
	}
	g := recs[1]
	if g.Price.IntPart() != 2800 || g.Change.String() != "-0.67" || len(g.Data) != 5 {
		t.Fatalf("unexpected GOOGL record %+v", g)
	}
	if !g.Data[len(g.Data)-1].Equal(g.Price) {
		t.Fatalf("last point should be the current price")
	}
}

func TestStaticReturnsCopies(t *testing.T) {
	src := Stocks()
	first, _ := src.Records(context.Background())
	first[0].Data[0] = first[0].Data[0].Neg()
	first[0].Name = "changed"

	again, _ := src.Records(context.Background())
	if again[0].Name != "AAPL" || again[0].Data[0].IsNegative() {
		t.Fatalf("callers must not mutate the static list: %+v", again[0])
	}
}

func TestMergedKeepsSourceOrder(t *testing.T) {
	crypto := Static{Summarize("bitcoin", nil)}
	recs, err := Merged{crypto, Stocks()}.Records(context.Background())
	if err != nil {
		t.Fatalf("merged: %v", err)
	}
	if len(recs) != 5 || recs[0].Name != "Bitcoin" || recs[1].Name != "AAPL" {
		t.Fatalf("unexpected order %+v", recs)
	}

	if _, err := (Merged{Stocks(), failingSource{}}).Records(context.Background()); err == nil {
		t.Fatalf("a failing source should fail the batch")
	}
	empty, err := Merged{}.Records(context.Background())
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty merge should be an empty list, got %v (%v)", empty, err)
	}
}
