package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/hitoshi/authman/internal/metrics"
	"github.com/hitoshi/authman/internal/model"
)

// IntentServiceInterface はインテントフローのサービスインターフェース。
type IntentServiceInterface interface {
	// StartEmailLogin はメールパスコードログインを開始し、インテントIDを返す。
	StartEmailLogin(ctx context.Context, email string) (string, error)
	// CompleteEmailLogin はパスコードを検証してセッショントークンを返す。
	CompleteEmailLogin(ctx context.Context, intentID, passcode string) (string, error)
	// StartPasswordReset はパスワードリセットを開始する。
	StartPasswordReset(ctx context.Context, email string) error
	// CompletePasswordReset はリセットトークンを検証し、新パスワードを設定して
	// セッショントークンを返す。
	CompletePasswordReset(ctx context.Context, resetToken, newPassword string) (string, error)
}

// CredentialServiceInterface はパスワード認証フローのサービスインターフェース。
type CredentialServiceInterface interface {
	// CreateWithPassword はパスワード付きアカウントを作成し、セッショントークンを返す。
	CreateWithPassword(ctx context.Context, email, password string) (string, error)
	// LoginWithPassword はパスワード認証を行い、セッショントークンを返す。
	LoginWithPassword(ctx context.Context, email, password string) (string, error)
}

// SessionServiceInterface はセッション解決のサービスインターフェース。
type SessionServiceInterface interface {
	// Resolve はセッショントークンから認証情報を解決する。未認証の場合はnilを返す。
	Resolve(ctx context.Context, token string) (*model.Identity, error)
}

// CleanupRunner は期限切れレコード削除ジョブの実行インターフェース。
type CleanupRunner interface {
	Run(ctx context.Context) (int64, error)
}

// AuthHandler は認証RPCのHTTPハンドラー。
type AuthHandler struct {
	intents     IntentServiceInterface
	credentials CredentialServiceInterface
	sessions    SessionServiceInterface
	cleanup     CleanupRunner
	metrics     metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	intents IntentServiceInterface,
	credentials CredentialServiceInterface,
	sessions SessionServiceInterface,
	cleanup CleanupRunner,
	collector metrics.MetricsCollector,
) *AuthHandler {
	return &AuthHandler{
		intents:     intents,
		credentials: credentials,
		sessions:    sessions,
		cleanup:     cleanup,
		metrics:     collector,
	}
}

// --- リクエスト・レスポンス型 ---

type fetchAccountRequest struct {
	SessionToken string `json:"session_token"`
}

type identityResponse struct {
	AccountID     string   `json:"account_id"`
	Scopes        []string `json:"scopes"`
	PasswordLogin bool     `json:"password_login"`
}

type fetchAccountResponse struct {
	Identity *identityResponse `json:"identity"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type createEmailLoginIntentResponse struct {
	IntentID string `json:"intent_id"`
}

type loginWithEmailLoginRequest struct {
	IntentID string `json:"intent_id"`
	PassKey  string `json:"pass_key"`
}

type loginWithNewPassLoginRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type passwordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionTokenResponse struct {
	SessionToken string `json:"session_token"`
}

type cleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// --- RPCハンドラー ---

// FetchAccount はセッショントークンから認証情報を解決する。
// POST /rpc/fetch_account
// トークンが無効・期限切れの場合もHTTPとしては成功で、identityをnullで返す。
// 未認証はゲートウェイにとって正常な状態でありエラーではない。
func (h *AuthHandler) FetchAccount(w http.ResponseWriter, r *http.Request) {
	var req fetchAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	identity, err := h.sessions.Resolve(r.Context(), req.SessionToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := fetchAccountResponse{}
	if identity != nil {
		scopes := make([]string, len(identity.Scopes))
		for i, s := range identity.Scopes {
			scopes[i] = string(s)
		}
		resp.Identity = &identityResponse{
			AccountID:     identity.AccountID,
			Scopes:        scopes,
			PasswordLogin: identity.PasswordLogin,
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// CreateEmailLoginIntent はメールパスコードログインを開始する。
// POST /rpc/create_email_login_intent
func (h *AuthHandler) CreateEmailLoginIntent(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmailRequest(w, r)
	if !ok {
		return
	}

	intentID, err := h.intents.StartEmailLogin(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordIntentIssued("email_login")
	writeJSONResponse(w, http.StatusCreated, createEmailLoginIntentResponse{IntentID: intentID})
}

// LoginWithEmailLogin はパスコードを検証してセッションを発行する。
// POST /rpc/login_with_email_login
func (h *AuthHandler) LoginWithEmailLogin(w http.ResponseWriter, r *http.Request) {
	var req loginWithEmailLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	token, err := h.intents.CompleteEmailLogin(r.Context(), req.IntentID, req.PassKey)
	if err != nil {
		h.recordLoginFailure("email", err)
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordLoginSuccess("email")
	h.metrics.RecordSessionMinted()
	writeJSONResponse(w, http.StatusOK, sessionTokenResponse{SessionToken: token})
}

// CreateNewPassLoginIntent はパスワードリセットを開始する。
// POST /rpc/create_new_pass_login_intent
// リセットトークンはメールでのみ届くため、レスポンスボディは空。
func (h *AuthHandler) CreateNewPassLoginIntent(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmailRequest(w, r)
	if !ok {
		return
	}

	if err := h.intents.StartPasswordReset(r.Context(), email); err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordIntentIssued("new_pass_login")
	w.WriteHeader(http.StatusNoContent)
}

// LoginWithNewPassLogin はリセットトークンを検証し、新パスワードを設定して
// セッションを発行する。
// POST /rpc/login_with_new_pass_login
func (h *AuthHandler) LoginWithNewPassLogin(w http.ResponseWriter, r *http.Request) {
	var req loginWithNewPassLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.NewPassword == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("new_passwordが空です"))
		return
	}

	token, err := h.intents.CompletePasswordReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.recordLoginFailure("reset", err)
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordLoginSuccess("reset")
	h.metrics.RecordSessionMinted()
	writeJSONResponse(w, http.StatusOK, sessionTokenResponse{SessionToken: token})
}

// CreateWithPassword はパスワード付きの新規アカウントを作成する。
// POST /rpc/create_with_password
func (h *AuthHandler) CreateWithPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePasswordRequest(w, r)
	if !ok {
		return
	}

	token, err := h.credentials.CreateWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordLoginSuccess("password")
	h.metrics.RecordSessionMinted()
	writeJSONResponse(w, http.StatusCreated, sessionTokenResponse{SessionToken: token})
}

// LoginWithPassword はパスワード認証を行う。
// POST /rpc/login_with_password
func (h *AuthHandler) LoginWithPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePasswordRequest(w, r)
	if !ok {
		return
	}

	token, err := h.credentials.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordLoginFailure("password", err)
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordLoginSuccess("password")
	h.metrics.RecordSessionMinted()
	writeJSONResponse(w, http.StatusOK, sessionTokenResponse{SessionToken: token})
}

// CleanupDB は期限切れレコードの削除を即時実行する。
// POST /rpc/cleanup_db
// 定期スイープとは独立した手動トリガー。運用ツールからの利用を想定する。
func (h *AuthHandler) CleanupDB(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.cleanup.Run(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cleanupResponse{Deleted: deleted})
}

// --- ヘルパー関数 ---

// decodeEmailRequest はメールアドレスのみのリクエストボディを解析・検証する。
// 失敗時はエラーレスポンスを書き込み、okにfalseを返す。
func decodeEmailRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return "", false
	}
	if !isValidEmail(req.Email) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidEmailError())
		return "", false
	}
	return req.Email, true
}

// decodePasswordRequest はメールアドレスとパスワードのリクエストボディを解析・検証する。
func decodePasswordRequest(w http.ResponseWriter, r *http.Request) (passwordRequest, bool) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return req, false
	}
	if !isValidEmail(req.Email) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidEmailError())
		return req, false
	}
	if req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("passwordが空です"))
		return req, false
	}
	return req, true
}

// isValidEmail はメールアドレスの構造的な妥当性を検証する。
// RFC 5322のアドレスとして解釈でき、かつ表示名を含まないことを要求する。
func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}

// recordLoginFailure は認証失敗をエラーコード付きでメトリクスに記録する。
// APIError以外の内部エラーは失敗カウントに含めない。
func (h *AuthHandler) recordLoginFailure(method string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		h.metrics.RecordLoginFailure(method, apiErr.Code)
	}
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidEmail, model.ErrCodeMalformedIntentID:
		return http.StatusBadRequest
	case model.ErrCodeWrongPassword, model.ErrCodeCodeMismatch:
		return http.StatusUnauthorized
	case model.ErrCodeAccountBlocked:
		return http.StatusForbidden
	case model.ErrCodeNoAccount, model.ErrCodeUnknownIntent, model.ErrCodeUnknownResetToken:
		return http.StatusNotFound
	case model.ErrCodeAccountExists, model.ErrCodeNoPasswordLogin:
		return http.StatusConflict
	case model.ErrCodeIntentExpired, model.ErrCodeResetTokenExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
