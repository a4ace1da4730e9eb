package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/authman/internal/model"
)

// PostgresScopeRepo はPostgreSQLを使用したスコープリポジトリ。
type PostgresScopeRepo struct {
	db *sql.DB
}

// NewPostgresScopeRepo はPostgresScopeRepoを生成する。
func NewPostgresScopeRepo(db *sql.DB) *PostgresScopeRepo {
	return &PostgresScopeRepo{db: db}
}

// ListByAccountID はアカウントに付与された全スコープを返す。
// 格納値が未知のスコープはエラーとする（プロビジョニング側の不整合を隠さない）。
func (r *PostgresScopeRepo) ListByAccountID(ctx context.Context, accountID string) ([]model.Scope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT scope FROM scopes WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []model.Scope
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scope, err := model.ParseScope(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scopes: %w", err)
	}

	return scopes, nil
}

// compile-time interface check
var _ ScopeRepository = (*PostgresScopeRepo)(nil)
