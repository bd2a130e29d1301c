package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/radieske/prediction-bet-sync/pkg/contracts/events"
)

// Migrations é o schema do journal, aplicado com db.Migrate(conn, Migrations, "migrations")
//
//go:embed migrations/*.sql
var Migrations embed.FS

// PostgresRepo grava os eventos de ciclo de vida na tabela bet_lifecycle_events
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// Insert grava o evento uma única vez por event_id; reentregas do Kafka retornam false
func (r *PostgresRepo) Insert(ctx context.Context, e events.BetLifecycle) (bool, error) {
	const q = `
		INSERT INTO bet_lifecycle_events
		  (event_id, op, bet_id, bet_address, signature, slot, actor, amount, price, occurred_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (event_id) DO NOTHING
	`
	var price sql.NullString
	if e.Price != "" {
		price = sql.NullString{String: e.Price, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx, q,
		e.EventID, e.Op, numeric(e.BetID), e.BetAddress, e.Signature, numeric(e.Slot),
		e.Actor, numeric(e.Amount), price, e.Ts,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// History lista os eventos de uma aposta em ordem de ocorrência
func (r *PostgresRepo) History(ctx context.Context, betID uint64) ([]events.BetLifecycle, error) {
	const q = `
		SELECT event_id, op, bet_id::text, bet_address, signature, slot::text, actor, amount::text,
		       COALESCE(price::text, ''), occurred_at
		FROM bet_lifecycle_events
		WHERE bet_id = $1
		ORDER BY occurred_at, recorded_at
	`
	rows, err := r.DB.QueryContext(ctx, q, numeric(betID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.BetLifecycle
	for rows.Next() {
		var (
			e                events.BetLifecycle
			id, slot, amount string
		)
		if err := rows.Scan(&e.EventID, &e.Op, &id, &e.BetAddress, &e.Signature, &slot,
			&e.Actor, &amount, &e.Price, &e.Ts); err != nil {
			return nil, err
		}
		if e.BetID, err = parseNumeric("bet_id", id); err != nil {
			return nil, err
		}
		if e.Slot, err = parseNumeric("slot", slot); err != nil {
			return nil, err
		}
		if e.Amount, err = parseNumeric("amount", amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// u64 vai como texto para colunas NUMERIC(20): BIGINT não comporta valores acima de MaxInt64
func numeric(v uint64) string { return strconv.FormatUint(v, 10) }

func parseNumeric(col, v string) (uint64, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return n, nil
}
