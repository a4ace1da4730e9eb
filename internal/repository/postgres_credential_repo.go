package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/authman/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用したパスワード資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByAccountID はアカウントのパスワード資格情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByAccountID(ctx context.Context, accountID string) (*model.PasswordCredential, error) {
	cred := &model.PasswordCredential{}
	err := r.db.QueryRowContext(ctx,
		`SELECT account_id, hash, salt, created_at
		 FROM password_credentials
		 WHERE account_id = $1`,
		accountID,
	).Scan(&cred.AccountID, &cred.Hash, &cred.Salt, &cred.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find password credential: %w", err)
	}

	return cred, nil
}

// Replace は既存の資格情報を削除してから新しい資格情報を挿入する。
// DELETE+INSERTを単一トランザクションで行うことで、
// アカウントごとに高々1行の不変条件を並行アクセス下でも維持する。
func (r *PostgresCredentialRepo) Replace(ctx context.Context, cred *model.PasswordCredential) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 旧資格情報は存在しない場合もあるため、削除件数は確認しない
	_, err = tx.ExecContext(ctx,
		`DELETE FROM password_credentials WHERE account_id = $1`,
		cred.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old password credential: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO password_credentials (account_id, hash, salt, created_at)
		 VALUES ($1, $2, $3, $4)`,
		cred.AccountID, cred.Hash, cred.Salt, cred.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert password credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
