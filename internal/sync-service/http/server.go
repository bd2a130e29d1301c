package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/bet"
	"github.com/radieske/prediction-bet-sync/internal/lifecycle"
	"github.com/radieske/prediction-bet-sync/internal/marketdata"
	"github.com/radieske/prediction-bet-sync/internal/sync-service/dto"
	"github.com/radieske/prediction-bet-sync/internal/syncstore"
)

// Store é a parte do syncstore.Store usada pela API
type Store interface {
	Snapshot() syncstore.State
	Refresh(kinds ...syncstore.Kind)
}

// Lifecycle são as operações do controller expostas via POST
type Lifecycle interface {
	CreateBet(ctx context.Context, p lifecycle.CreateParams) (lifecycle.Result, error)
	EnterBet(ctx context.Context, b bet.Bet, price decimal.Decimal) (lifecycle.Result, error)
	CloseBet(ctx context.Context, b bet.Bet) (lifecycle.Result, error)
	ClaimBet(ctx context.Context, b bet.Bet) (lifecycle.Result, error)
}

// Markets fornece os dados de mercado (opcional)
type Markets interface {
	Records(ctx context.Context) ([]marketdata.Record, error)
}

// API expõe o estado sincronizado e as operações de aposta
type API struct {
	Log     *zap.Logger
	Store   Store
	Ctrl    Lifecycle
	Markets Markets      // nil desliga /v1/markets
	WS      http.Handler // nil desliga /ws

	SubmitTimeout time.Duration // prazo de cada operação de escrita; zero = sem prazo
}

// Router retorna o roteador HTTP com os endpoints REST e o WebSocket
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/state", a.getState)     // snapshot completo
	r.Get("/v1/master", a.getMaster)   // conta master
	r.Get("/v1/bets", a.listBets)      // todas as apostas
	r.Get("/v1/bets/{id}", a.getBet)   // uma aposta
	r.Post("/v1/sync", a.sync)         // re-sincroniza tudo
	r.Get("/v1/markets", a.getMarkets) // dados de mercado

	r.Post("/v1/bets", a.createBet)
	r.Post("/v1/bets/{id}/enter", a.enterBet)
	r.Post("/v1/bets/{id}/close", a.closeBet)
	r.Post("/v1/bets/{id}/claim", a.claimBet)

	if a.WS != nil {
		r.Handle("/ws", a.WS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor traduz a taxonomia de erros para HTTP
func StatusFor(err error) int {
	switch bet.KindOf(err) {
	case bet.ErrPreconditionUnmet:
		return http.StatusPreconditionFailed
	case bet.ErrInvalidState:
		return http.StatusConflict
	case bet.ErrRemoteRejected:
		return http.StatusUnprocessableEntity
	case bet.ErrOracleUnavailable, bet.ErrUnavailable:
		return http.StatusServiceUnavailable
	case bet.ErrNotFound:
		return http.StatusNotFound
	case bet.ErrInvalidSeed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	resp := dto.ErrorResponse{Error: err.Error()}
	if k := bet.KindOf(err); k != nil {
		resp.Kind = k.Error()
	}
	writeJSON(w, StatusFor(err), resp)
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.Snapshot())
}

func (a *API) getMaster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.Snapshot().Master)
}

func (a *API) listBets(w http.ResponseWriter, r *http.Request) {
	st := a.Store.Snapshot()
	if q := r.URL.Query().Get("state"); q != "" && st.Bets.Ready() {
		want, err := bet.ParseState(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		filtered := make([]bet.Bet, 0, len(st.Bets.Value))
		for _, b := range st.Bets.Value {
			if b.State == want {
				filtered = append(filtered, b)
			}
		}
		st.Bets.Value = filtered
	}
	writeJSON(w, http.StatusOK, st.Bets)
}

func (a *API) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := a.lookup(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) sync(w http.ResponseWriter, r *http.Request) {
	a.Store.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func (a *API) getMarkets(w http.ResponseWriter, r *http.Request) {
	if a.Markets == nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "market data disabled"})
		return
	}
	recs, err := a.Markets.Records(r.Context())
	if err != nil {
		a.Log.Warn("market data fetch failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *API) createBet(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	ctx, cancel := a.opContext(r)
	defer cancel()
	res, err := a.Ctrl.CreateBet(ctx, lifecycle.CreateParams{
		Amount:      req.Amount,
		TargetPrice: req.TargetPrice,
		Duration:    req.Duration,
		OracleKey:   req.OracleKey,
	})
	a.writeResult(w, res, err)
}

func (a *API) enterBet(w http.ResponseWriter, r *http.Request) {
	var req dto.EnterBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	b, err := a.lookup(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	ctx, cancel := a.opContext(r)
	defer cancel()
	res, err := a.Ctrl.EnterBet(ctx, b, req.Price)
	a.writeResult(w, res, err)
}

func (a *API) closeBet(w http.ResponseWriter, r *http.Request) {
	b, err := a.lookup(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	ctx, cancel := a.opContext(r)
	defer cancel()
	res, err := a.Ctrl.CloseBet(ctx, b)
	a.writeResult(w, res, err)
}

func (a *API) claimBet(w http.ResponseWriter, r *http.Request) {
	b, err := a.lookup(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	ctx, cancel := a.opContext(r)
	defer cancel()
	res, err := a.Ctrl.ClaimBet(ctx, b)
	a.writeResult(w, res, err)
}

func (a *API) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	if a.SubmitTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), a.SubmitTimeout)
}

func (a *API) writeResult(w http.ResponseWriter, res lifecycle.Result, err error) {
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ReceiptResponse{
		Op:        res.Op,
		BetID:     res.BetID,
		Signature: res.Receipt.Signature.String(),
		Slot:      res.Receipt.Slot,
	})
}

var errBadID = errors.New("invalid bet id")

// lookup resolve {id} contra o snapshot local de apostas
func (a *API) lookup(r *http.Request) (bet.Bet, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return bet.Bet{}, bet.NewError("lookup", bet.ErrPreconditionUnmet, raw, errBadID)
	}
	st := a.Store.Snapshot()
	if !st.Bets.Ready() {
		return bet.Bet{}, bet.NewError("lookup", bet.ErrPreconditionUnmet, "bets not loaded ("+string(st.Bets.Status)+")", st.Bets.Err())
	}
	b, ok := st.Bet(id)
	if !ok {
		return bet.Bet{}, bet.NewError("lookup", bet.ErrNotFound, "bet "+raw, nil)
	}
	return b, nil
}
