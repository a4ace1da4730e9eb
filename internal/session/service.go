// Package session はセッショントークンの発行と解決を提供する。
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
	"github.com/hitoshi/authman/internal/token"
)

const (
	// TokenLength はセッショントークンの文字数。
	TokenLength = 128

	// DefaultTTL はセッションの既定有効期間。
	DefaultTTL = 7 * 24 * time.Hour
)

// Service はセッションのビジネスロジックを提供する。
type Service struct {
	sessions repository.SessionRepository
	scopes   repository.ScopeRepository
	tokens   *token.Source
	ttl      time.Duration
}

// NewService はServiceを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewService(sessions repository.SessionRepository, scopes repository.ScopeRepository, tokens *token.Source, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		sessions: sessions,
		scopes:   scopes,
		tokens:   tokens,
		ttl:      ttl,
	}
}

// Create は指定アカウントの新しいセッションを発行し、トークンを返す。
// passwordLoginはセッションがパスワード認証由来かどうかを表す。
// 既存セッションは無効化しない。複数デバイスからの同時ログインを許容する。
func (s *Service) Create(ctx context.Context, accountID string, passwordLogin bool) (string, error) {
	tok, err := s.tokens.Alphanumeric(TokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &model.Session{
		Token:         tok,
		AccountID:     accountID,
		PasswordLogin: passwordLogin,
		ExpiresAt:     time.Now().UTC().Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return tok, nil
}

// Resolve はセッショントークンからアカウントの認証情報を解決する。
// トークンが存在しない場合は(nil, nil)を返す（未認証はエラーではない）。
// 期限切れのセッションは見つけた時点で削除し、存在しないものとして扱う。
func (s *Service) Resolve(ctx context.Context, tok string) (*model.Identity, error) {
	if tok == "" {
		return nil, nil
	}

	session, err := s.sessions.FindByToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if time.Now().After(session.ExpiresAt) {
		// 遅延削除。スイープ前の期限切れセッションも認証には使えない。
		if err := s.sessions.DeleteByToken(ctx, tok); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}

	scopes, err := s.scopes.ListByAccountID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}

	return &model.Identity{
		AccountID:     session.AccountID,
		Scopes:        scopes,
		PasswordLogin: session.PasswordLogin,
	}, nil
}
