package cli

import (
	"context"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/radieske/prediction-bet-sync/internal/syncstore"
)

func (r *root) newMasterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "master",
		Short: "Show the master account (last bet id)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				wctx, cancel := waitContext(ctx, app.Cfg)
				defer cancel()
				st, err := app.Wait(wctx, syncstore.KindMaster)
				if err != nil {
					return err
				}
				addr, err := app.Setup.Deriver().Master()
				if err != nil {
					return err
				}
				m := st.Master.Value
				return outputOf(cmd).table(pterm.TableData{
					{"Address", "Last bet id", "Next bet id"},
					{addr.String(), strconv.FormatUint(m.LastBetID, 10), strconv.FormatUint(m.NextBetID(), 10)},
				}).WithHasHeader().Render()
			})
		},
	}
}
