package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/authman/internal/model"
)

// PostgresNewPassLoginIntentRepo はPostgreSQLを使用したパスワードリセットインテントリポジトリ。
type PostgresNewPassLoginIntentRepo struct {
	db *sql.DB
}

// NewPostgresNewPassLoginIntentRepo はPostgresNewPassLoginIntentRepoを生成する。
func NewPostgresNewPassLoginIntentRepo(db *sql.DB) *PostgresNewPassLoginIntentRepo {
	return &PostgresNewPassLoginIntentRepo{db: db}
}

// Create はインテントを作成する。
func (r *PostgresNewPassLoginIntentRepo) Create(ctx context.Context, intent *model.NewPassLoginIntent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO new_pass_login_intents (token, account_id, expires_at)
		 VALUES ($1, $2, $3)`,
		intent.Token, intent.AccountID, intent.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert new pass login intent: %w", err)
	}
	return nil
}

// FindByToken はトークンでインテントを取得する。期限切れでも返す。見つからない場合はnilを返す。
func (r *PostgresNewPassLoginIntentRepo) FindByToken(ctx context.Context, token string) (*model.NewPassLoginIntent, error) {
	intent := &model.NewPassLoginIntent{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, account_id, expires_at
		 FROM new_pass_login_intents
		 WHERE token = $1`,
		token,
	).Scan(&intent.Token, &intent.AccountID, &intent.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find new pass login intent: %w", err)
	}

	return intent, nil
}

// DeleteByToken はトークンでインテントを削除する。
func (r *PostgresNewPassLoginIntentRepo) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM new_pass_login_intents WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete new pass login intent: %w", err)
	}
	return nil
}

// Label はログとメトリクスで使うレコード種別名を返す。
func (r *PostgresNewPassLoginIntentRepo) Label() string {
	return "new_pass_login_intents"
}

// DeleteExpired はexpires_atがcutoffより前の全インテントを削除し、削除件数を返す。
func (r *PostgresNewPassLoginIntentRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM new_pass_login_intents WHERE expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired new pass login intents: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ NewPassLoginIntentRepository = (*PostgresNewPassLoginIntentRepo)(nil)
