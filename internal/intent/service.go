// Package intent はログインインテント（メールパスコードとパスワードリセットトークン）の
// 発行と完了フローを提供する。
package intent

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
	"github.com/hitoshi/authman/internal/token"
)

const (
	// DefaultTTL はインテントの既定有効期間。
	// 受信トレイを開いてコードを転記する人間の所要時間に合わせた短い窓。
	DefaultTTL = 6 * time.Minute

	// PasscodeLength はメールパスコードの文字数。
	PasscodeLength = 6

	// ResetTokenLength はパスワードリセットトークンの文字数。
	ResetTokenLength = 64
)

// AccountRegistry はインテントフローが必要とするアカウント操作。
type AccountRegistry interface {
	GetOrCreateAccount(ctx context.Context, email string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
}

// PasswordSetter はリセット完了時のパスワード設定操作。
type PasswordSetter interface {
	SetPassword(ctx context.Context, accountID, password string) error
}

// SessionMinter は認証成功時のセッション発行操作。
type SessionMinter interface {
	Create(ctx context.Context, accountID string, passwordLogin bool) (string, error)
}

// Mailer はパスコード・リセットトークンの配送操作。
type Mailer interface {
	Send(ctx context.Context, email, subject, bodyHTML string) error
}

// Service はログインインテントのビジネスロジックを提供する。
type Service struct {
	emailIntents repository.EmailLoginIntentRepository
	resetIntents repository.NewPassLoginIntentRepository
	registry     AccountRegistry
	passwords    PasswordSetter
	sessions     SessionMinter
	mailer       Mailer
	tokens       *token.Source
	ttl          time.Duration
}

// NewService はServiceを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewService(
	emailIntents repository.EmailLoginIntentRepository,
	resetIntents repository.NewPassLoginIntentRepository,
	registry AccountRegistry,
	passwords PasswordSetter,
	sessions SessionMinter,
	mailer Mailer,
	tokens *token.Source,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		emailIntents: emailIntents,
		resetIntents: resetIntents,
		registry:     registry,
		passwords:    passwords,
		sessions:     sessions,
		mailer:       mailer,
		tokens:       tokens,
		ttl:          ttl,
	}
}

// StartEmailLogin はメールパスコードログインを開始する。
// アカウントが存在しなければ作成し、6文字のパスコードをメールで送信して
// インテントIDを返す。ブロック済みアカウントには発行しない。
// メール送信に失敗した場合は操作全体が失敗する。残ったインテント行は
// 認証に使えないただのゴミであり、スイーパーが回収する。
func (s *Service) StartEmailLogin(ctx context.Context, email string) (string, error) {
	account, err := s.registry.GetOrCreateAccount(ctx, email)
	if err != nil {
		return "", err
	}
	if account.Blocked {
		return "", model.NewAccountBlockedError()
	}

	passcode, err := s.tokens.Alphanumeric(PasscodeLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}

	intent := &model.EmailLoginIntent{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		PassKey:   passcode,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}
	if err := s.emailIntents.Create(ctx, intent); err != nil {
		return "", fmt.Errorf("failed to store email login intent: %w", err)
	}

	body := fmt.Sprintf("<h1>%s</h1><p>ログイン画面でこのパスコードを入力してください。</p>", passcode)
	if err := s.mailer.Send(ctx, email, "ログインパスコードのお知らせ", body); err != nil {
		return "", fmt.Errorf("failed to send passcode mail: %w", err)
	}

	return intent.ID, nil
}

// CompleteEmailLogin はインテントIDとパスコードを検証し、
// 成功すればパスワード認証由来ではないセッショントークンを返す。
// 期限切れのインテントは即座に削除される。パスコード不一致の場合は
// インテントを残し、有効期限内の再試行を許す。
// 成功時はセッション発行の前にインテントを削除する。途中でクラッシュしても
// 使用済みインテントが残らないことを優先する。
func (s *Service) CompleteEmailLogin(ctx context.Context, intentID, passcode string) (string, error) {
	if _, err := uuid.Parse(intentID); err != nil {
		return "", model.NewMalformedIntentIDError()
	}

	intent, err := s.emailIntents.FindByID(ctx, intentID)
	if err != nil {
		return "", fmt.Errorf("failed to look up email login intent: %w", err)
	}
	if intent == nil {
		return "", model.NewUnknownIntentError()
	}

	if time.Now().After(intent.ExpiresAt) {
		if err := s.emailIntents.DeleteByID(ctx, intentID); err != nil {
			return "", fmt.Errorf("failed to delete expired intent: %w", err)
		}
		return "", model.NewIntentExpiredError()
	}

	if subtle.ConstantTimeCompare([]byte(passcode), []byte(intent.PassKey)) != 1 {
		return "", model.NewCodeMismatchError()
	}

	account, err := s.registry.GetAccountByID(ctx, intent.AccountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", fmt.Errorf("intent references missing account %s", intent.AccountID)
	}
	if account.Blocked {
		return "", model.NewAccountBlockedError()
	}

	if err := s.emailIntents.DeleteByID(ctx, intentID); err != nil {
		return "", fmt.Errorf("failed to delete used intent: %w", err)
	}

	tok, err := s.sessions.Create(ctx, account.ID, false)
	if err != nil {
		return "", err
	}
	return tok, nil
}

// StartPasswordReset はパスワードリセットを開始する。
// アカウントが存在しなければ作成し、64文字のリセットトークンをメールで送信する。
// トークン自体がメールでしか届かないため、レスポンスには何も返さない。
func (s *Service) StartPasswordReset(ctx context.Context, email string) error {
	account, err := s.registry.GetOrCreateAccount(ctx, email)
	if err != nil {
		return err
	}
	if account.Blocked {
		return model.NewAccountBlockedError()
	}

	resetToken, err := s.tokens.Alphanumeric(ResetTokenLength)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	intent := &model.NewPassLoginIntent{
		Token:     resetToken,
		AccountID: account.ID,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}
	if err := s.resetIntents.Create(ctx, intent); err != nil {
		return fmt.Errorf("failed to store password reset intent: %w", err)
	}

	body := fmt.Sprintf("<h1>%s</h1><p>パスワード再設定画面でこのトークンを入力してください。</p>", resetToken)
	if err := s.mailer.Send(ctx, email, "パスワード再設定のご案内", body); err != nil {
		return fmt.Errorf("failed to send reset token mail: %w", err)
	}

	return nil
}

// CompletePasswordReset はリセットトークンを検証し、新しいパスワードを設定して
// パスワード認証由来のセッショントークンを返す。
// トークンは結果にかかわらず一度で消費される。新パスワードの設定より先に
// インテントを削除し、途中でクラッシュしてもトークンを再利用できないようにする。
func (s *Service) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) (string, error) {
	intent, err := s.resetIntents.FindByToken(ctx, resetToken)
	if err != nil {
		return "", fmt.Errorf("failed to look up password reset intent: %w", err)
	}
	if intent == nil {
		return "", model.NewUnknownResetTokenError()
	}

	if time.Now().After(intent.ExpiresAt) {
		if err := s.resetIntents.DeleteByToken(ctx, resetToken); err != nil {
			return "", fmt.Errorf("failed to delete expired reset intent: %w", err)
		}
		return "", model.NewResetTokenExpiredError()
	}

	if err := s.resetIntents.DeleteByToken(ctx, resetToken); err != nil {
		return "", fmt.Errorf("failed to delete used reset intent: %w", err)
	}

	account, err := s.registry.GetAccountByID(ctx, intent.AccountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", fmt.Errorf("reset intent references missing account %s", intent.AccountID)
	}
	if account.Blocked {
		return "", model.NewAccountBlockedError()
	}

	if err := s.passwords.SetPassword(ctx, account.ID, newPassword); err != nil {
		return "", err
	}

	tok, err := s.sessions.Create(ctx, account.ID, true)
	if err != nil {
		return "", err
	}
	return tok, nil
}
