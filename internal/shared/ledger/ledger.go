// Package ledger monta o Store e o oráculo a partir do Config, no modo rpc ou memory.
// É compartilhado entre o sync-service e o betctl.
package ledger

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/address"
	"github.com/radieske/prediction-bet-sync/internal/oracle"
	"github.com/radieske/prediction-bet-sync/internal/program"
	"github.com/radieske/prediction-bet-sync/internal/program/memory"
	"github.com/radieske/prediction-bet-sync/internal/shared/config"
	"github.com/radieske/prediction-bet-sync/internal/syncstore"
)

const (
	ModeRPC    = "rpc"
	ModeMemory = "memory"
)

// Setup agrupa o que o main precisa para montar o controller
type Setup struct {
	ProgramID  solana.PublicKey
	Connection syncstore.Connection
	Factory    syncstore.Factory
	Oracle     oracle.Source
}

// Deriver deriva os endereços do programa configurado
func (s *Setup) Deriver() address.Deriver { return address.NewDeriver(s.ProgramID) }

// Build resolve o modo do ledger e devolve a fábrica de handles e a fonte de preço
func Build(cfg config.Config, log *zap.Logger) (*Setup, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id %q: %w", cfg.ProgramID, err)
	}

	switch cfg.LedgerMode {
	case ModeMemory:
		feeds := oracle.NewStatic()
		if err := seedPrices(feeds, cfg.OraclePrices); err != nil {
			return nil, err
		}
		led := memory.NewLedger(programID, memory.WithOracle(feeds.Lookup))
		log.Info("using in-memory ledger", zap.String("program_id", programID.String()))
		return &Setup{
			ProgramID:  programID,
			Connection: syncstore.Connection{Endpoint: "memory", ProgramID: programID},
			Factory: func(_ syncstore.Connection, signer solana.PrivateKey) (program.Handle, error) {
				if len(signer) == 0 {
					return led.Handle(solana.PublicKey{}), nil
				}
				return led.Handle(signer.PublicKey()), nil
			},
			Oracle: feeds,
		}, nil

	case ModeRPC, "":
		commitment := solanarpc.CommitmentType(cfg.Commitment)
		rpcClient := solanarpc.New(cfg.RPCEndpoint)
		log.Info("using rpc ledger",
			zap.String("endpoint", cfg.RPCEndpoint),
			zap.String("program_id", programID.String()),
			zap.String("commitment", cfg.Commitment),
		)
		return &Setup{
			ProgramID:  programID,
			Connection: syncstore.Connection{Endpoint: cfg.RPCEndpoint, ProgramID: programID},
			Factory: func(conn syncstore.Connection, signer solana.PrivateKey) (program.Handle, error) {
				rpc := rpcClient
				if conn.Endpoint != cfg.RPCEndpoint {
					rpc = solanarpc.New(conn.Endpoint)
				}
				opts := []program.Option{
					program.WithCommitment(commitment),
					program.WithLogger(log.Named("program")),
				}
				if len(signer) > 0 {
					opts = append(opts, program.WithSigner(signer))
				}
				return program.New(rpc, conn.ProgramID, opts...), nil
			},
			Oracle: oracle.NewReader(rpcClient, cfg.MaxOracleAge),
		}, nil

	default:
		return nil, fmt.Errorf("unknown LEDGER_MODE %q (want rpc or memory)", cfg.LedgerMode)
	}
}

// LoadKeypair lê um arquivo de keypair no formato do solana-keygen; path vazio = sem identidade
func LoadKeypair(path string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("keypair %s: %w", path, err)
	}
	return key, nil
}

func seedPrices(feeds *oracle.Static, list string) error {
	for _, pair := range strings.Split(list, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("ORACLE_PRICES: %q is not feed=price", pair)
		}
		feed, err := solana.PublicKeyFromBase58(strings.TrimSpace(k))
		if err != nil {
			return fmt.Errorf("ORACLE_PRICES feed %q: %w", k, err)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ORACLE_PRICES price %q: %w", v, err)
		}
		feeds.Set(feed, price)
	}
	return nil
}
