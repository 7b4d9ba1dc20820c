package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"iris/internal/storage"
	txcontext "iris/pkg/platform/tx"

	id "iris/pkg/domain"
)

// PostgresStore writes audit records to the append-only audit_records table.
// Append honours a transaction in context, so a record appended inside
// Store.RunInTx commits atomically with the entity mutation it describes.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, record *Record) error {
	if err := storage.RequireSystem(ctx); err != nil {
		return err
	}

	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	var actorID any
	if record.ActorID != nil {
		actorID = record.ActorID.String()
	}

	query := `
		INSERT INTO audit_records (id, actor_id, action, target_type, target_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID, actorID, string(record.Action), record.TargetType,
		record.TargetID, payload, record.CreatedAt); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByActor(ctx context.Context, actorID id.PrincipalID) ([]Record, error) {
	if err := storage.RequireSystem(ctx); err != nil {
		return nil, err
	}
	return s.list(ctx, `
		SELECT id, seq, actor_id, action, target_type, target_id, metadata, created_at
		FROM audit_records WHERE actor_id = $1 ORDER BY seq
	`, actorID.String())
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Record, error) {
	if err := storage.RequireSystem(ctx); err != nil {
		return nil, err
	}
	return s.list(ctx, `
		SELECT id, seq, actor_id, action, target_type, target_id, metadata, created_at
		FROM audit_records ORDER BY seq
	`)
}

func (s *PostgresStore) PurgeActor(ctx context.Context, actorID id.PrincipalID) error {
	if err := storage.RequireSystem(ctx); err != nil {
		return err
	}
	if _, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM audit_records WHERE actor_id = $1`, actorID.String()); err != nil {
		return fmt.Errorf("purge audit records: %w", err)
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record   Record
			rawActor *string
			action   string
			payload  []byte
		)
		if err := rows.Scan(&record.ID, &record.Seq, &rawActor, &action,
			&record.TargetType, &record.TargetID, &payload, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		record.Action = Action(action)
		if rawActor != nil {
			parsed, err := uuid.Parse(*rawActor)
			if err != nil {
				return nil, fmt.Errorf("parse audit actor: %w", err)
			}
			actor := id.PrincipalID(parsed)
			record.ActorID = &actor
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &record.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
