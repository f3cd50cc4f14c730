package workflow

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellside/coedit/model"
)

// PgStore is a PostgreSQL-backed transition store using pgx/v5.
//
// Expected table:
//
//	state_transitions (
//	    id          text primary key,
//	    record_id   bigint not null,
//	    from_status text not null,
//	    to_status   text not null,
//	    actor_id    text not null,
//	    reason      text not null default '',
//	    comment     text not null default '',
//	    at          timestamptz not null
//	)
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL transition store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CommitTransition applies the status change, pointer advance and audit
// row in one transaction. Passing snapshotVersion 0 leaves the pointer
// alone: GREATEST keeps it where it is.
func (s *PgStore) CommitTransition(ctx context.Context, from, to model.Status, snapshotVersion int64, tr model.StateTransition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE records
		SET status = $1,
		    current_version = GREATEST(current_version, $2),
		    updated_at = $3
		WHERE id = $4 AND status = $5`,
		to, snapshotVersion, tr.Timestamp, tr.RecordID, from,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(model.ConflictConcurrentEdit,
			fmt.Sprintf("record %d is no longer %q", tr.RecordID, from),
		)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO state_transitions (id, record_id, from_status, to_status, actor_id, reason, comment, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tr.ID, tr.RecordID, tr.FromStatus, tr.ToStatus, tr.ActorID, tr.Reason, tr.Comment, tr.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// History returns a record's transitions newest-first.
func (s *PgStore) History(ctx context.Context, recordID int64, limit, offset int) ([]model.StateTransition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, record_id, from_status, to_status, actor_id, reason, comment, at
		FROM state_transitions
		WHERE record_id = $1
		ORDER BY at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		recordID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var trs []model.StateTransition
	for rows.Next() {
		var tr model.StateTransition
		if err := rows.Scan(&tr.ID, &tr.RecordID, &tr.FromStatus, &tr.ToStatus, &tr.ActorID, &tr.Reason, &tr.Comment, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		trs = append(trs, tr)
	}
	return trs, rows.Err()
}
