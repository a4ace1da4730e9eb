// Package account はメールアドレスとアカウントの対応を管理するレジストリを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
)

// Service はアカウントレジストリのビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
}

// NewService はServiceを生成する。
func NewService(accounts repository.AccountRepository) *Service {
	return &Service{accounts: accounts}
}

// GetAccount はメールアドレス完全一致でアカウントを検索する。
// 見つからない場合はnilを返す（エラーではない）。副作用はない。
func (s *Service) GetAccount(ctx context.Context, email string) (*model.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return account, nil
}

// GetAccountByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (s *Service) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account by ID: %w", err)
	}
	return account, nil
}

// CreateAccount は新しいアカウントを作成する。
// 同じメールアドレスのアカウントが既に存在する場合はACCOUNT_EXISTSエラーを返す。
// 重複検出は事前チェックではなくDB側の一意制約に委ねる（同時作成の競合を正しく裁くため）。
func (s *Service) CreateAccount(ctx context.Context, email string) (*model.Account, error) {
	account := &model.Account{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewAccountExistsError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// GetOrCreateAccount はメールアドレスでアカウントを検索し、存在しなければ作成する。
// 並行して別リクエストが先に作成した場合は一意制約違反を成功として扱い、再検索した結果を返す。
func (s *Service) GetOrCreateAccount(ctx context.Context, email string) (*model.Account, error) {
	account, err := s.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	account = &model.Account{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// 並行作成に負けた。勝った側の行を返す。
			winner, lookupErr := s.GetAccount(ctx, email)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if winner == nil {
				return nil, fmt.Errorf("account vanished after duplicate insert for email")
			}
			return winner, nil
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}
