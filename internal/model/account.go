// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Account はメールアドレスに紐付く恒久的なアカウントを表す。
// このサービスが削除することはない。
type Account struct {
	ID        string
	Email     string
	CreatedAt time.Time
	Blocked   bool
}

// Scope はアカウントに付与される認可タグを表す。
// 付与・剥奪は外部のプロビジョニングが行い、本サービスは読み取りのみ。
type Scope string

const (
	ScopePublic   Scope = "Public"
	ScopeCustomer Scope = "Customer"
	ScopeRetailer Scope = "Retailer"
	ScopePartner  Scope = "Partner"
	ScopeAdmin    Scope = "Admin"
)

// ParseScope は格納値からScopeを復元する。未知の値はエラーを返す。
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopePublic, ScopeCustomer, ScopeRetailer, ScopePartner, ScopeAdmin:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope: %q", s)
}

// Identity はセッショントークンの解決結果を表す。
// ゲートウェイがアクセス制御に使用する。
type Identity struct {
	AccountID     string
	Scopes        []Scope
	PasswordLogin bool
}

// PasswordCredential はアカウントごとに高々1件のパスワード資格情報を表す。
// ハッシュとソルトは別カラムに保存する（argon2idの出力とbase64ソルト）。
type PasswordCredential struct {
	AccountID string
	Hash      string
	Salt      string
	CreatedAt time.Time
}

// EmailLoginIntent はメールで届くワンタイムパスコードのログインチャレンジを表す。
// IDは呼び出し元に返す不透明な参照であり、秘密情報はPassKeyのみ。
type EmailLoginIntent struct {
	ID        string
	AccountID string
	PassKey   string
	ExpiresAt time.Time
}

// NewPassLoginIntent はメールで届くパスワード設定/リセットのチャレンジを表す。
// トークン自体が識別子かつ秘密情報を兼ねる。提示＝証明。
type NewPassLoginIntent struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
}

// Session は認証成功後に発行される長命のベアラー資格情報を表す。
// 再認証は常に新しいセッションを発行し、既存セッションの延長は行わない。
type Session struct {
	Token         string
	AccountID     string
	PasswordLogin bool
	ExpiresAt     time.Time
}
