package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"mailhook/internal/registry/models"
	"mailhook/pkg/sentinel"
)

// Postgres persists domain records in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const domainColumns = `domain, verification_status, verification_token, dkim_tokens, webhook_url, function_ref, owning_environment, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, record *models.DomainRecord) error {
	dkim, fn, err := marshalJSONFields(record)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO domains (` + domainColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		record.Domain,
		record.Status,
		record.VerificationToken,
		dkim,
		nullString(record.WebhookURL),
		fn,
		record.OwningEnvironment,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create domain: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, domain string) (*models.DomainRecord, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE domain = $1`
	record, err := scanDomain(s.db.QueryRowContext(ctx, query, domain))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return record, nil
}

func (s *Postgres) Update(ctx context.Context, record *models.DomainRecord) error {
	dkim, fn, err := marshalJSONFields(record)
	if err != nil {
		return err
	}
	query := `
		UPDATE domains
		SET verification_status = $2,
		    verification_token = $3,
		    dkim_tokens = $4,
		    webhook_url = $5,
		    function_ref = $6,
		    updated_at = $7
		WHERE domain = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		record.Domain,
		record.Status,
		record.VerificationToken,
		dkim,
		nullString(record.WebhookURL),
		fn,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, domain string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM domains WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.DomainRecord, error) {
	query := `SELECT ` + domainColumns + ` FROM domains ORDER BY domain`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []*models.DomainRecord
	for rows.Next() {
		record, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("list domains: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*models.DomainRecord, error) {
	var (
		record  models.DomainRecord
		dkim    []byte
		fn      []byte
		webhook sql.NullString
	)
	err := row.Scan(
		&record.Domain,
		&record.Status,
		&record.VerificationToken,
		&dkim,
		&webhook,
		&fn,
		&record.OwningEnvironment,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.WebhookURL = webhook.String
	if len(dkim) > 0 {
		if err := json.Unmarshal(dkim, &record.DKIMTokens); err != nil {
			return nil, fmt.Errorf("decode dkim tokens: %w", err)
		}
	}
	if len(fn) > 0 {
		if err := json.Unmarshal(fn, &record.Function); err != nil {
			return nil, fmt.Errorf("decode function ref: %w", err)
		}
	}
	return &record, nil
}

func marshalJSONFields(record *models.DomainRecord) (dkim, fn []byte, err error) {
	tokens := record.DKIMTokens
	if tokens == nil {
		tokens = []string{}
	}
	dkim, err = json.Marshal(tokens)
	if err != nil {
		return nil, nil, fmt.Errorf("encode dkim tokens: %w", err)
	}
	if record.Function != nil {
		fn, err = json.Marshal(record.Function)
		if err != nil {
			return nil, nil, fmt.Errorf("encode function ref: %w", err)
		}
	}
	return dkim, fn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
