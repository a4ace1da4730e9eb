package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/authman/internal/model"
)

// PostgresEmailLoginIntentRepo はPostgreSQLを使用したメールログインインテントリポジトリ。
type PostgresEmailLoginIntentRepo struct {
	db *sql.DB
}

// NewPostgresEmailLoginIntentRepo はPostgresEmailLoginIntentRepoを生成する。
func NewPostgresEmailLoginIntentRepo(db *sql.DB) *PostgresEmailLoginIntentRepo {
	return &PostgresEmailLoginIntentRepo{db: db}
}

// Create はインテントを作成する。
func (r *PostgresEmailLoginIntentRepo) Create(ctx context.Context, intent *model.EmailLoginIntent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_login_intents (id, account_id, pass_key, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		intent.ID, intent.AccountID, intent.PassKey, intent.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert email login intent: %w", err)
	}
	return nil
}

// FindByID は指定IDのインテントを取得する。期限切れでも返す。見つからない場合はnilを返す。
func (r *PostgresEmailLoginIntentRepo) FindByID(ctx context.Context, id string) (*model.EmailLoginIntent, error) {
	intent := &model.EmailLoginIntent{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, pass_key, expires_at
		 FROM email_login_intents
		 WHERE id = $1`,
		id,
	).Scan(&intent.ID, &intent.AccountID, &intent.PassKey, &intent.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find email login intent: %w", err)
	}

	return intent, nil
}

// DeleteByID は指定IDのインテントを削除する。
func (r *PostgresEmailLoginIntentRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM email_login_intents WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete email login intent: %w", err)
	}
	return nil
}

// Label はログとメトリクスで使うレコード種別名を返す。
func (r *PostgresEmailLoginIntentRepo) Label() string {
	return "email_login_intents"
}

// DeleteExpired はexpires_atがcutoffより前の全インテントを削除し、削除件数を返す。
func (r *PostgresEmailLoginIntentRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM email_login_intents WHERE expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired email login intents: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ EmailLoginIntentRepository = (*PostgresEmailLoginIntentRepo)(nil)
