// Package credential はargon2idによるパスワード資格情報の管理と
// パスワード認証フローを提供する。
package credential

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
)

// argon2idパラメータ。変更すると既存ハッシュの検証結果が変わるため固定。
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltLength   = 16
)

// AccountRegistry はパスワードフローが必要とするアカウント操作。
type AccountRegistry interface {
	GetAccount(ctx context.Context, email string) (*model.Account, error)
	CreateAccount(ctx context.Context, email string) (*model.Account, error)
}

// SessionMinter は認証成功時のセッション発行操作。
type SessionMinter interface {
	Create(ctx context.Context, accountID string, passwordLogin bool) (string, error)
}

// Service はパスワード資格情報のビジネスロジックを提供する。
type Service struct {
	credentials repository.CredentialRepository
	registry    AccountRegistry
	sessions    SessionMinter
}

// NewService はServiceを生成する。
func NewService(credentials repository.CredentialRepository, registry AccountRegistry, sessions SessionMinter) *Service {
	return &Service{
		credentials: credentials,
		registry:    registry,
		sessions:    sessions,
	}
}

// SetPassword はアカウントのパスワードを無条件に設定する。
// 既存の資格情報があれば新しいものに置き換える。呼び出し前の本人確認は呼び出し側の責務。
func (s *Service) SetPassword(ctx context.Context, accountID, password string) error {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	cred := &model.PasswordCredential{
		AccountID: accountID,
		Hash:      base64.RawStdEncoding.EncodeToString(hash),
		Salt:      base64.RawStdEncoding.EncodeToString(salt),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.credentials.Replace(ctx, cred); err != nil {
		return fmt.Errorf("failed to store password credential: %w", err)
	}

	return nil
}

// VerifyPassword は平文パスワードをアカウントの保存済みハッシュと照合する。
// 資格情報が存在しない場合はNO_PASSWORD_LOGINエラーを返す。
// 比較は一定時間で行い、タイミング差を漏らさない。
func (s *Service) VerifyPassword(ctx context.Context, accountID, password string) (bool, error) {
	cred, err := s.credentials.FindByAccountID(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to look up password credential: %w", err)
	}
	if cred == nil {
		return false, model.NewNoPasswordLoginError()
	}

	salt, err := base64.RawStdEncoding.DecodeString(cred.Salt)
	if err != nil {
		return false, fmt.Errorf("failed to decode stored salt: %w", err)
	}
	stored, err := base64.RawStdEncoding.DecodeString(cred.Hash)
	if err != nil {
		return false, fmt.Errorf("failed to decode stored hash: %w", err)
	}

	computed := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(computed, stored) == 1, nil
}

// CreateWithPassword はパスワード付きの新規アカウントを作成し、
// パスワード認証由来のセッショントークンを返す。
// 同じメールアドレスのアカウントが既に存在する場合はACCOUNT_EXISTSエラーを返す。
func (s *Service) CreateWithPassword(ctx context.Context, email, password string) (string, error) {
	account, err := s.registry.CreateAccount(ctx, email)
	if err != nil {
		return "", err
	}

	if err := s.SetPassword(ctx, account.ID, password); err != nil {
		return "", err
	}

	tok, err := s.sessions.Create(ctx, account.ID, true)
	if err != nil {
		return "", err
	}
	return tok, nil
}

// LoginWithPassword はメールアドレスとパスワードで認証し、
// パスワード認証由来のセッショントークンを返す。
func (s *Service) LoginWithPassword(ctx context.Context, email, password string) (string, error) {
	account, err := s.registry.GetAccount(ctx, email)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", model.NewNoAccountError()
	}
	if account.Blocked {
		return "", model.NewAccountBlockedError()
	}

	ok, err := s.VerifyPassword(ctx, account.ID, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", model.NewWrongPasswordError()
	}

	tok, err := s.sessions.Create(ctx, account.ID, true)
	if err != nil {
		return "", err
	}
	return tok, nil
}
