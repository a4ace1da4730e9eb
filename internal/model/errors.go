package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 呼び出し元（ゲートウェイ）に返す原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // 呼び出し元向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidEmail         = "INVALID_EMAIL"
	ErrCodeMalformedIntentID    = "MALFORMED_INTENT_ID"
	ErrCodeAccountExists        = "ACCOUNT_EXISTS"
	ErrCodeNoAccount            = "NO_ACCOUNT"
	ErrCodeAccountBlocked       = "ACCOUNT_BLOCKED"
	ErrCodeNoPasswordLogin      = "NO_PASSWORD_LOGIN"
	ErrCodeWrongPassword        = "WRONG_PASSWORD"
	ErrCodeUnknownIntent        = "UNKNOWN_INTENT"
	ErrCodeIntentExpired        = "INTENT_EXPIRED"
	ErrCodeCodeMismatch         = "CODE_MISMATCH"
	ErrCodeUnknownResetToken    = "UNKNOWN_RESET_TOKEN"
	ErrCodeResetTokenExpired    = "RESET_TOKEN_EXPIRED"
)

// NewInvalidRequestError はリクエスト形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidEmailError はメールアドレスが構造的に不正な場合のエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が不正です。",
		Category: "validation",
		Action:   "正しいメールアドレスを指定してください。",
	}
}

// NewMalformedIntentIDError はインテントIDがUUIDとして解釈できない場合のエラーを生成する。
func NewMalformedIntentIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMalformedIntentID,
		Message:  "インテントIDの形式が不正です。",
		Category: "validation",
		Action:   "create_email_login_intent が返したIDをそのまま指定してください。",
	}
}

// NewAccountExistsError は既に同じメールアドレスのアカウントが存在する場合のエラーを生成する。
func NewAccountExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountExists,
		Message:  "このメールアドレスのアカウントは既に存在します。",
		Category: "auth",
		Action:   "login_with_password でログインするか、パスワードリセットを開始してください。",
	}
}

// NewNoAccountError は指定メールアドレスのアカウントが存在しない場合のエラーを生成する。
func NewNoAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeNoAccount,
		Message:  "このメールアドレスのアカウントは存在しません。",
		Category: "auth",
		Action:   "create_with_password でアカウントを作成してください。",
	}
}

// NewAccountBlockedError はブロック済みアカウントへの操作を拒否するエラーを生成する。
func NewAccountBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountBlocked,
		Message:  "このアカウントはブロックされています。",
		Category: "auth",
		Action:   "サポートに問い合わせてください。",
	}
}

// NewNoPasswordLoginError はパスワード資格情報を持たないアカウントへの
// パスワードログイン試行を拒否するエラーを生成する。
func NewNoPasswordLoginError() *APIError {
	return &APIError{
		Code:     ErrCodeNoPasswordLogin,
		Message:  "このアカウントはパスワードログインに対応していません。",
		Category: "auth",
		Action:   "メールログインを使用するか、パスワードリセットでパスワードを設定してください。",
	}
}

// NewWrongPasswordError はパスワード不一致のエラーを生成する。
func NewWrongPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWrongPassword,
		Message:  "パスワードが一致しません。",
		Category: "auth",
		Action:   "パスワードを確認して再度お試しください。",
	}
}

// NewUnknownIntentError は存在しないメールログインインテントへの参照エラーを生成する。
func NewUnknownIntentError() *APIError {
	return &APIError{
		Code:     ErrCodeUnknownIntent,
		Message:  "指定されたログインインテントは存在しません。",
		Category: "auth",
		Action:   "create_email_login_intent からやり直してください。",
	}
}

// NewIntentExpiredError は期限切れメールログインインテントのエラーを生成する。
// このエラーが返された時点でインテントは削除済みであり、フローの再開が必要。
func NewIntentExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeIntentExpired,
		Message:  "ログインインテントの有効期限が切れています。",
		Category: "auth",
		Action:   "create_email_login_intent からやり直してください。",
	}
}

// NewCodeMismatchError はパスコード不一致のエラーを生成する。
// インテントは削除されないため、有効期限内であれば再試行できる。
func NewCodeMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeMismatch,
		Message:  "パスコードが一致しません。",
		Category: "auth",
		Action:   "メールに記載されたパスコードを確認して再度お試しください。",
	}
}

// NewUnknownResetTokenError は存在しないリセットトークンへの参照エラーを生成する。
func NewUnknownResetTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeUnknownResetToken,
		Message:  "指定されたリセットトークンは存在しません。",
		Category: "auth",
		Action:   "create_new_pass_login_intent からやり直してください。",
	}
}

// NewResetTokenExpiredError は期限切れリセットトークンのエラーを生成する。
// このエラーが返された時点でトークンは削除済みであり、フローの再開が必要。
func NewResetTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeResetTokenExpired,
		Message:  "リセットトークンの有効期限が切れています。",
		Category: "auth",
		Action:   "create_new_pass_login_intent からやり直してください。",
	}
}
