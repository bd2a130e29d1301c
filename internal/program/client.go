package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/address"
	"github.com/radieske/prediction-bet-sync/internal/bet"
)

// Ledger é o contrato do programa remoto: fetch-one, fetch-all e submit.
// Nenhuma implementação faz retry automático; isso é decisão de quem chama.
type Ledger interface {
	FetchMaster(ctx context.Context) (bet.Master, error)
	FetchBet(ctx context.Context, id uint64) (bet.Bet, error)
	FetchAllBets(ctx context.Context) ([]bet.Bet, error)
	Submit(ctx context.Context, ix Instruction) (Receipt, error)
}

// Handle é um Ledger amarrado a uma conexão e a uma identidade (opcional)
type Handle interface {
	Ledger
	Identity() (solana.PublicKey, bool)
}

// Receipt identifica uma transação confirmada
type Receipt struct {
	Instruction string           `json:"instruction"`
	Signature   solana.Signature `json:"signature"`
	Slot        uint64           `json:"slot"`
}

// RPC é o subconjunto do client JSON-RPC da Solana usado aqui
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, publicKey solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts) (solanarpc.GetProgramAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error)
}

var _ RPC = (*solanarpc.Client)(nil)

// Client é a fachada tipada sobre o programa de apostas.
// signer pode ser nil: nesse caso o client só lê.
type Client struct {
	rpc          RPC
	programID    solana.PublicKey
	deriver      address.Deriver
	signer       solana.PrivateKey
	commitment   solanarpc.CommitmentType
	pollInterval time.Duration
	log          *zap.Logger
}

// Option customiza o Client
type Option func(*Client)

func WithCommitment(c solanarpc.CommitmentType) Option {
	return func(cl *Client) { cl.commitment = c }
}

func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) { cl.pollInterval = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithSigner define a identidade que assina as transações
func WithSigner(k solana.PrivateKey) Option {
	return func(cl *Client) { cl.signer = k }
}

// New cria um Client para o programa programID
func New(rpc RPC, programID solana.PublicKey, opts ...Option) *Client {
	c := &Client{
		rpc:          rpc,
		programID:    programID,
		deriver:      address.NewDeriver(programID),
		commitment:   solanarpc.CommitmentConfirmed,
		pollInterval: 500 * time.Millisecond,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ProgramID() solana.PublicKey { return c.programID }

// Identity retorna a chave pública do signer, se houver
func (c *Client) Identity() (solana.PublicKey, bool) {
	if len(c.signer) == 0 {
		return solana.PublicKey{}, false
	}
	return c.signer.PublicKey(), true
}

// FetchMaster lê a conta master
func (c *Client) FetchMaster(ctx context.Context) (bet.Master, error) {
	addr, err := c.deriver.Master()
	if err != nil {
		return bet.Master{}, err
	}
	data, err := c.fetchAccount(ctx, "fetchMaster", addr)
	if err != nil {
		return bet.Master{}, err
	}
	m, err := DecodeMaster(data)
	if err != nil {
		return bet.Master{}, bet.NewError("fetchMaster", bet.ErrUnavailable, "undecodable account", err)
	}
	return m, nil
}

// FetchBet lê uma aposta pelo id (endereço sempre re-derivado)
func (c *Client) FetchBet(ctx context.Context, id uint64) (bet.Bet, error) {
	addr, err := c.deriver.Bet(id)
	if err != nil {
		return bet.Bet{}, err
	}
	data, err := c.fetchAccount(ctx, "fetchBet", addr)
	if err != nil {
		return bet.Bet{}, err
	}
	b, err := DecodeBet(addr, data)
	if err != nil {
		return bet.Bet{}, bet.NewError("fetchBet", bet.ErrUnavailable, "undecodable account", err)
	}
	return b, nil
}

// FetchAllBets lista todas as contas de aposta do programa, na ordem devolvida pelo nó.
// Contas que não decodificam são ignoradas com warning.
func (c *Client) FetchAllBets(ctx context.Context) ([]bet.Bet, error) {
	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, c.programID, &solanarpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []solanarpc.RPCFilter{
			{Memcmp: &solanarpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(betDiscriminator[:])}},
		},
	})
	if err != nil {
		return nil, bet.NewError("fetchAllBets", bet.ErrUnavailable, "", err)
	}
	bets := make([]bet.Bet, 0, len(out))
	for _, ka := range out {
		if ka == nil || ka.Account == nil || ka.Account.Data == nil {
			continue
		}
		b, err := DecodeBet(ka.Pubkey, ka.Account.Data.GetBinary())
		if err != nil {
			c.log.Warn("skipping undecodable bet account", zap.Stringer("address", ka.Pubkey), zap.Error(err))
			continue
		}
		bets = append(bets, b)
	}
	return bets, nil
}

func (c *Client) fetchAccount(ctx context.Context, op string, addr solana.PublicKey) ([]byte, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &solanarpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, bet.NewError(op, bet.ErrNotFound, addr.String(), nil)
		}
		return nil, bet.NewError(op, bet.ErrUnavailable, "", err)
	}
	if res == nil || res.Value == nil {
		return nil, bet.NewError(op, bet.ErrNotFound, addr.String(), nil)
	}
	if !res.Value.Owner.Equals(c.programID) {
		return nil, bet.NewError(op, bet.ErrNotFound, fmt.Sprintf("%s not owned by program", addr), nil)
	}
	return res.GetBinary(), nil
}

// Submit assina, envia e espera a confirmação da instrução.
// Se o contexto acabar depois do envio, a transação pode ainda ser confirmada:
// quem chama deve checar o estado remoto antes de reenviar.
func (c *Client) Submit(ctx context.Context, ix Instruction) (Receipt, error) {
	op := ix.Name()
	if len(c.signer) == 0 {
		return Receipt{}, bet.NewError(op, bet.ErrPreconditionUnmet, "no signer", nil)
	}
	payer := c.signer.PublicKey()

	inst, err := ix.Build(c.programID)
	if err != nil {
		return Receipt{}, bet.NewError(op, bet.ErrPreconditionUnmet, "build instruction", err)
	}

	recent, err := c.rpc.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	if err != nil {
		return Receipt{}, bet.NewError(op, bet.ErrUnavailable, "latest blockhash", err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{inst}, recent.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return Receipt{}, bet.NewError(op, bet.ErrPreconditionUnmet, "build transaction", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &c.signer
		}
		return nil
	}); err != nil {
		return Receipt{}, bet.NewError(op, bet.ErrPreconditionUnmet, "sign transaction", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return Receipt{}, bet.NewError(op, bet.ErrRemoteRejected, rpcErr.Message, err)
		}
		return Receipt{}, bet.NewError(op, bet.ErrUnavailable, "send transaction", err)
	}
	c.log.Debug("transaction sent", zap.String("instruction", op), zap.Stringer("signature", sig))

	return c.awaitConfirmation(ctx, op, sig)
}

func (c *Client) awaitConfirmation(ctx context.Context, op string, sig solana.Signature) (Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return Receipt{}, bet.NewError(op, bet.ErrRemoteRejected, fmt.Sprintf("%v", st.Err), nil)
			}
			if st.ConfirmationStatus == solanarpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == solanarpc.ConfirmationStatusFinalized {
				return Receipt{Instruction: op, Signature: sig, Slot: st.Slot}, nil
			}
		} else if err != nil {
			c.log.Debug("signature status poll failed", zap.Stringer("signature", sig), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return Receipt{}, bet.NewError(op, bet.ErrUnavailable,
				"sent but not confirmed ("+sig.String()+"); check remote state before resubmitting", ctx.Err())
		case <-ticker.C:
		}
	}
}
