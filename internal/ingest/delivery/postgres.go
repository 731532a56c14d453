package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"mailhook/pkg/sentinel"
)

// PostgresStore persists delivery records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `message_id, domain, function_invoked, function_status_code, function_response, webhook_invoked, webhook_status_code, webhook_response, payload_snapshot, processing_error, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO delivery_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`
	_, err := s.db.ExecContext(ctx, query,
		record.MessageID,
		record.Domain,
		record.FunctionInvoked,
		nullInt(record.FunctionStatusCode),
		record.FunctionResponse,
		record.WebhookInvoked,
		nullInt(record.WebhookStatusCode),
		record.WebhookResponse,
		nullBytes(record.PayloadSnapshot),
		record.ProcessingError,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create delivery record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, messageID string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records WHERE message_id = $1`

	var (
		record       Record
		functionCode sql.NullInt64
		webhookCode  sql.NullInt64
		snapshot     []byte
	)
	err := s.db.QueryRowContext(ctx, query, messageID).Scan(
		&record.MessageID,
		&record.Domain,
		&record.FunctionInvoked,
		&functionCode,
		&record.FunctionResponse,
		&record.WebhookInvoked,
		&webhookCode,
		&record.WebhookResponse,
		&snapshot,
		&record.ProcessingError,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get delivery record: %w", err)
	}
	if functionCode.Valid {
		v := int(functionCode.Int64)
		record.FunctionStatusCode = &v
	}
	if webhookCode.Valid {
		v := int(webhookCode.Int64)
		record.WebhookStatusCode = &v
	}
	record.PayloadSnapshot = snapshot
	return &record, nil
}

func (s *PostgresStore) Update(ctx context.Context, record *Record) error {
	query := `
		UPDATE delivery_records
		SET domain = $2,
		    function_invoked = $3,
		    function_status_code = $4,
		    function_response = $5,
		    webhook_invoked = $6,
		    webhook_status_code = $7,
		    webhook_response = $8,
		    payload_snapshot = $9,
		    processing_error = $10,
		    updated_at = now()
		WHERE message_id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		record.MessageID,
		record.Domain,
		record.FunctionInvoked,
		nullInt(record.FunctionStatusCode),
		record.FunctionResponse,
		record.WebhookInvoked,
		nullInt(record.WebhookStatusCode),
		record.WebhookResponse,
		nullBytes(record.PayloadSnapshot),
		record.ProcessingError,
	)
	if err != nil {
		return fmt.Errorf("update delivery record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delivery record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
