package cli

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/radieske/prediction-bet-sync/internal/address"
)

// newAddressCmd deriva endereços sem tocar na rede
func (r *root) newAddressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Derive program addresses offline",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "master",
		Short: "Print the master account address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := r.deriver()
			if err != nil {
				return err
			}
			addr, bump, err := address.Derive([][]byte{address.SeedMaster}, d.ProgramID)
			if err != nil {
				return err
			}
			return renderAddress(outputOf(cmd), "master", addr, bump)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "bet <id>",
		Short: "Print the address of bet <id>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := r.deriver()
			if err != nil {
				return err
			}
			addr, bump, err := address.Derive([][]byte{address.SeedBet, address.BetIDSeed(id)}, d.ProgramID)
			if err != nil {
				return err
			}
			return renderAddress(outputOf(cmd), "bet "+args[0], addr, bump)
		},
	})

	return cmd
}

func (r *root) deriver() (address.Deriver, error) {
	cfg := r.config()
	pid, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return address.Deriver{}, fmt.Errorf("program id %q: %w", cfg.ProgramID, err)
	}
	return address.NewDeriver(pid), nil
}

func renderAddress(out output, label string, addr solana.PublicKey, bump uint8) error {
	return out.table(pterm.TableData{
		{"Account", "Address", "Bump"},
		{label, addr.String(), strconv.Itoa(int(bump))},
	}).WithHasHeader().Render()
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bet id %q", s)
	}
	return id, nil
}
