package cli

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/radieske/prediction-bet-sync/internal/bet"
	"github.com/radieske/prediction-bet-sync/internal/journal"
	"github.com/radieske/prediction-bet-sync/internal/lifecycle"
	"github.com/radieske/prediction-bet-sync/internal/shared/db"
	"github.com/radieske/prediction-bet-sync/internal/syncstore"
)

func (r *root) newBetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bets",
		Short: "List and operate bets",
	}
	cmd.AddCommand(r.newBetsListCmd())
	cmd.AddCommand(r.newBetsShowCmd())
	cmd.AddCommand(r.newBetsCreateCmd())
	cmd.AddCommand(r.newBetsEnterCmd())
	cmd.AddCommand(r.betOpCmd("close", "Close an entered bet (participants only)", func(ctx context.Context, app *App, b bet.Bet) (lifecycle.Result, error) {
		return app.Ctrl.CloseBet(ctx, b)
	}))
	cmd.AddCommand(r.betOpCmd("claim", "Settle a closed bet against the oracle price", func(ctx context.Context, app *App, b bet.Bet) (lifecycle.Result, error) {
		return app.Ctrl.ClaimBet(ctx, b)
	}))
	cmd.AddCommand(r.newBetsHistoryCmd())
	return cmd
}

func (r *root) newBetsListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all bets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *bet.State
			if state != "" {
				s, err := bet.ParseState(state)
				if err != nil {
					return err
				}
				filter = &s
			}
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				wctx, cancel := waitContext(ctx, app.Cfg)
				defer cancel()
				st, err := app.Wait(wctx, syncstore.KindBets)
				if err != nil {
					return err
				}
				var bets []bet.Bet
				for _, b := range st.Bets.Value {
					if filter == nil || b.State == *filter {
						bets = append(bets, b)
					}
				}
				out := outputOf(cmd)
				if len(bets) == 0 {
					out.info().Println("No bets found")
					return nil
				}
				return renderBets(out, bets, time.Now())
			})
		},
	}
	cmd.Flags().StringVarP(&state, "state", "s", "", "filter by state (open, entered, closed, claimed, expired)")
	return cmd
}

func (r *root) newBetsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one bet, read straight from its account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				h, err := app.Store.Handle()
				if err != nil {
					return err
				}
				fctx, cancel := waitContext(ctx, app.Cfg)
				defer cancel()
				b, err := h.FetchBet(fctx, id)
				if err != nil {
					return err
				}
				return renderBet(outputOf(cmd), b, time.Now())
			})
		},
	}
}

func (r *root) newBetsCreateCmd() *cobra.Command {
	var (
		amount   uint64
		target   string
		duration time.Duration
		feed     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new bet with you as the first player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := decimal.NewFromString(target)
			if err != nil {
				return fmt.Errorf("invalid --target %q", target)
			}
			oracleKey, err := solana.PublicKeyFromBase58(feed)
			if err != nil {
				return fmt.Errorf("invalid --oracle %q: %w", feed, err)
			}
			secs, err := durationSeconds(duration)
			if err != nil {
				return err
			}
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				wctx, cancel := waitContext(ctx, app.Cfg)
				defer cancel()
				if _, err := app.Wait(wctx, syncstore.KindMaster); err != nil {
					return err
				}
				res, err := app.Ctrl.CreateBet(ctx, lifecycle.CreateParams{
					Amount:      amount,
					TargetPrice: price,
					Duration:    secs,
					OracleKey:   oracleKey,
				})
				if err != nil {
					return err
				}
				printResult(outputOf(cmd), res)
				return nil
			})
		},
	}
	cmd.Flags().Uint64VarP(&amount, "amount", "a", 0, "stake in the smallest unit")
	cmd.Flags().StringVarP(&target, "target", "t", "", "target price (up to 8 decimals)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", time.Hour, "time until the bet expires")
	cmd.Flags().StringVarP(&feed, "oracle", "o", "", "oracle price feed account")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("oracle")
	return cmd
}

func (r *root) newBetsEnterCmd() *cobra.Command {
	var price string
	cmd := &cobra.Command{
		Use:   "enter <id>",
		Short: "Take the other side of an open bet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid --price %q", price)
			}
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				b, err := loadBet(ctx, app, id)
				if err != nil {
					return err
				}
				res, err := app.Ctrl.EnterBet(ctx, b, p)
				if err != nil {
					return err
				}
				printResult(outputOf(cmd), res)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&price, "price", "p", "", "your predicted price")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

type betOp func(ctx context.Context, app *App, b bet.Bet) (lifecycle.Result, error)

func (r *root) betOpCmd(use, short string, op betOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				b, err := loadBet(ctx, app, id)
				if err != nil {
					return err
				}
				res, err := op(ctx, app, b)
				if err != nil {
					return err
				}
				printResult(outputOf(cmd), res)
				return nil
			})
		},
	}
}

// newBetsHistoryCmd lê o journal no Postgres; não precisa do ledger
func (r *root) newBetsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the recorded lifecycle events of a bet (journal)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg := r.config()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pg.Close()

			evs, err := journal.NewPostgresRepo(pg).History(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to read journal: %w", err)
			}
			out := outputOf(cmd)
			if len(evs) == 0 {
				out.info().Printfln("No recorded events for bet %d", id)
				return nil
			}
			data := pterm.TableData{{"When", "Op", "Actor", "Amount", "Price", "Signature"}}
			for _, e := range evs {
				data = append(data, []string{
					e.Ts.Local().Format(time.DateTime), e.Op, short(e.Actor),
					strconv.FormatUint(e.Amount, 10), e.Price, short(e.Signature),
				})
			}
			return out.table(data).WithHasHeader().Render()
		},
	}
}

// loadBet espera as apostas carregarem e procura o id no snapshot
func loadBet(ctx context.Context, app *App, id uint64) (bet.Bet, error) {
	wctx, cancel := waitContext(ctx, app.Cfg)
	defer cancel()
	st, err := app.Wait(wctx, syncstore.KindBets)
	if err != nil {
		return bet.Bet{}, err
	}
	b, ok := st.Bet(id)
	if !ok {
		return bet.Bet{}, bet.NewError("lookup", bet.ErrNotFound, "bet "+strconv.FormatUint(id, 10), nil)
	}
	return b, nil
}

// durationSeconds converte --duration para os segundos u32 da instrução
func durationSeconds(d time.Duration) (uint32, error) {
	secs := d / time.Second
	if secs <= 0 {
		return 0, fmt.Errorf("invalid --duration %s: must be at least 1s", d)
	}
	if secs > math.MaxUint32 {
		return 0, fmt.Errorf("invalid --duration %s: exceeds %d seconds", d, uint32(math.MaxUint32))
	}
	return uint32(secs), nil
}

func printResult(out output, res lifecycle.Result) {
	out.success().Printfln("%s confirmed for bet #%d", res.Op, res.BetID)
	out.info().Printfln("signature %s (slot %d)", res.Receipt.Signature, res.Receipt.Slot)
}

func renderBets(out output, bets []bet.Bet, now time.Time) error {
	data := pterm.TableData{{"ID", "State", "Amount", "Target", "Expires", "Player A", "Player B"}}
	for _, b := range bets {
		data = append(data, []string{
			strconv.FormatUint(b.ID, 10),
			b.State.String(),
			strconv.FormatUint(b.Amount, 10),
			b.TargetPrice.String(),
			expiry(b, now),
			player(b.PredictionA),
			player(b.PredictionB),
		})
	}
	return out.table(data).WithHasHeader().Render()
}

func renderBet(out output, b bet.Bet, now time.Time) error {
	return out.table(pterm.TableData{
		{"ID", strconv.FormatUint(b.ID, 10)},
		{"Address", b.Address.String()},
		{"State", b.State.String()},
		{"Amount", strconv.FormatUint(b.Amount, 10)},
		{"Target price", b.TargetPrice.String()},
		{"Oracle", b.OracleKey.String()},
		{"Created", time.Unix(b.CreatedAt, 0).Local().Format(time.DateTime)},
		{"Expires", expiry(b, now)},
		{"Player A", prediction(b.PredictionA)},
		{"Player B", prediction(b.PredictionB)},
	}).Render()
}

func expiry(b bet.Bet, now time.Time) string {
	left := b.RemainingAt(now)
	if left <= 0 {
		return "expired"
	}
	return "in " + left.Truncate(time.Second).String()
}

func player(p *bet.Prediction) string {
	if p == nil {
		return "-"
	}
	return short(p.Player.String())
}

func prediction(p *bet.Prediction) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%s @ %s (stake %d)", p.Player, p.Price, p.Stake)
}

func short(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}
