// Package cli implementa o betctl: consulta e opera apostas direto no ledger.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/radieske/prediction-bet-sync/internal/bet"
	"github.com/radieske/prediction-bet-sync/internal/shared/config"
	"github.com/radieske/prediction-bet-sync/internal/shared/logger"
)

// root guarda o viper compartilhado pelos subcomandos
type root struct {
	v *viper.Viper
}

// NewRootCmd monta a árvore de comandos; flags sobrescrevem env e betsync.yaml
func NewRootCmd() *cobra.Command {
	r := &root{v: config.New()}

	cmd := &cobra.Command{
		Use:           "betctl",
		Short:         "betctl inspects and drives prediction bets on the ledger",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := cmd.PersistentFlags()
	pf.String("ledger", "", "ledger mode: rpc or memory")
	pf.String("rpc", "", "Solana JSON-RPC endpoint")
	pf.String("program", "", "bet program id")
	pf.StringP("keypair", "k", "", "solana-keygen keypair file (omit for read-only)")
	pf.String("log-level", "warn", "log level")
	_ = r.v.BindPFlag("LEDGER_MODE", pf.Lookup("ledger"))
	_ = r.v.BindPFlag("RPC_ENDPOINT", pf.Lookup("rpc"))
	_ = r.v.BindPFlag("PROGRAM_ID", pf.Lookup("program"))
	_ = r.v.BindPFlag("KEYPAIR_PATH", pf.Lookup("keypair"))
	_ = r.v.BindPFlag("LOG_LEVEL", pf.Lookup("log-level"))

	cmd.AddCommand(r.newMasterCmd())
	cmd.AddCommand(r.newBetsCmd())
	cmd.AddCommand(r.newAddressCmd())

	return cmd
}

// Execute roda o betctl e sai com código 1 em erro
func Execute() {
	pterm.Error.Prefix = pterm.Prefix{
		Text:  " ERROR ",
		Style: pterm.NewStyle(pterm.BgLightRed, pterm.FgBlack),
	}

	if err := NewRootCmd().Execute(); err != nil {
		pterm.Error.Println(describe(err))
		os.Exit(1)
	}
}

func (r *root) config() config.Config {
	cfg := config.FromViper(r.v)
	if cfg.ServiceName == "" {
		cfg.ServiceName = "betctl"
	}
	return cfg
}

// withApp monta o App, espera o primeiro carregamento e executa fn
func (r *root) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg := r.config()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	app, err := NewApp(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, app)
}

// describe põe o tipo da taxonomia na frente da mensagem
func describe(err error) string {
	msg := err.Error()
	if k := bet.KindOf(err); k != nil && !strings.HasPrefix(msg, k.Error()) {
		return fmt.Sprintf("[%s] %s", k, msg)
	}
	return msg
}

// output liga os printers do pterm ao writer do comando
type output struct{ w io.Writer }

func outputOf(cmd *cobra.Command) output { return output{w: cmd.OutOrStdout()} }

func (o output) info() *pterm.PrefixPrinter    { return pterm.Info.WithWriter(o.w) }
func (o output) success() *pterm.PrefixPrinter { return pterm.Success.WithWriter(o.w) }

func (o output) table(data pterm.TableData) *pterm.TablePrinter {
	return pterm.DefaultTable.WithWriter(o.w).WithData(data)
}
