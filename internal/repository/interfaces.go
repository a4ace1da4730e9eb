// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/authman/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
// 事前チェックではなく制約違反の検出で返すことで、同時作成の競合に耐える。
var ErrDuplicateEmail = errors.New("account with this email already exists")

// ExpirableRepository は期限付きレコードの一括削除能力を表す。
// 3種類のエフェメラルレコード（インテント2種とセッション）が共通して実装し、
// スイーパーは単一のカットオフ時刻でこのインターフェースの集合を走査する。
type ExpirableRepository interface {
	// Label はログとメトリクスで使うレコード種別名を返す。
	Label() string
	// DeleteExpired はexpires_atがcutoffより前の全レコードを削除し、削除件数を返す。
	// 冪等であり、リクエスト処理と並行して実行しても安全。
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByEmail はメールアドレス完全一致でアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// Create はアカウントを作成する。
	// メールアドレスの一意制約違反の場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, account *model.Account) error
}

// ScopeRepository はアカウントに付与されたスコープの読み取りインターフェース。
// スコープの付与・剥奪は外部プロビジョニングが行うため、書き込み操作は持たない。
type ScopeRepository interface {
	// ListByAccountID はアカウントに付与された全スコープを返す。
	ListByAccountID(ctx context.Context, accountID string) ([]model.Scope, error)
}

// CredentialRepository はパスワード資格情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByAccountID はアカウントのパスワード資格情報を取得する。見つからない場合はnilを返す。
	FindByAccountID(ctx context.Context, accountID string) (*model.PasswordCredential, error)

	// Replace は既存の資格情報を削除してから新しい資格情報を挿入する。
	// 旧行が存在しない場合もあるため、UPDATEではなくDELETE+INSERTを単一トランザクションで行う。
	Replace(ctx context.Context, cred *model.PasswordCredential) error
}

// EmailLoginIntentRepository はメールログインインテントの永続化インターフェース。
type EmailLoginIntentRepository interface {
	// Create はインテントを作成する。
	Create(ctx context.Context, intent *model.EmailLoginIntent) error

	// FindByID は指定IDのインテントを取得する。期限切れでも返す（判定はサービス層が行う）。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.EmailLoginIntent, error)

	// DeleteByID は指定IDのインテントを削除する。
	DeleteByID(ctx context.Context, id string) error

	ExpirableRepository
}

// NewPassLoginIntentRepository はパスワードリセットインテントの永続化インターフェース。
type NewPassLoginIntentRepository interface {
	// Create はインテントを作成する。
	Create(ctx context.Context, intent *model.NewPassLoginIntent) error

	// FindByToken はトークンでインテントを取得する。期限切れでも返す。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.NewPassLoginIntent, error)

	// DeleteByToken はトークンでインテントを削除する。
	DeleteByToken(ctx context.Context, token string) error

	ExpirableRepository
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByToken はトークンでセッションを取得する。期限切れでも返す
	// （期限判定と遅延削除はセッションマネージャが行う）。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// DeleteByToken はトークンでセッションを削除する。
	DeleteByToken(ctx context.Context, token string) error

	ExpirableRepository
}
