package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/authman/internal/model"
)

// mockIntentService はIntentServiceInterfaceのモック実装。
type mockIntentService struct {
	startEmailLoginFunc       func(ctx context.Context, email string) (string, error)
	completeEmailLoginFunc    func(ctx context.Context, intentID, passcode string) (string, error)
	startPasswordResetFunc    func(ctx context.Context, email string) error
	completePasswordResetFunc func(ctx context.Context, resetToken, newPassword string) (string, error)
}

func (m *mockIntentService) StartEmailLogin(ctx context.Context, email string) (string, error) {
	return m.startEmailLoginFunc(ctx, email)
}

func (m *mockIntentService) CompleteEmailLogin(ctx context.Context, intentID, passcode string) (string, error) {
	return m.completeEmailLoginFunc(ctx, intentID, passcode)
}

func (m *mockIntentService) StartPasswordReset(ctx context.Context, email string) error {
	return m.startPasswordResetFunc(ctx, email)
}

func (m *mockIntentService) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) (string, error) {
	return m.completePasswordResetFunc(ctx, resetToken, newPassword)
}

// mockCredentialService はCredentialServiceInterfaceのモック実装。
type mockCredentialService struct {
	createWithPasswordFunc func(ctx context.Context, email, password string) (string, error)
	loginWithPasswordFunc  func(ctx context.Context, email, password string) (string, error)
}

func (m *mockCredentialService) CreateWithPassword(ctx context.Context, email, password string) (string, error) {
	return m.createWithPasswordFunc(ctx, email, password)
}

func (m *mockCredentialService) LoginWithPassword(ctx context.Context, email, password string) (string, error) {
	return m.loginWithPasswordFunc(ctx, email, password)
}

// mockSessionService はSessionServiceInterfaceのモック実装。
type mockSessionService struct {
	resolveFunc func(ctx context.Context, token string) (*model.Identity, error)
}

func (m *mockSessionService) Resolve(ctx context.Context, token string) (*model.Identity, error) {
	return m.resolveFunc(ctx, token)
}

// mockCleanupRunner はCleanupRunnerのモック実装。
type mockCleanupRunner struct {
	runFunc func(ctx context.Context) (int64, error)
}

func (m *mockCleanupRunner) Run(ctx context.Context) (int64, error) {
	return m.runFunc(ctx)
}

// stubCollector はメトリクス収集のテスト実装。
type stubCollector struct {
	loginSuccesses map[string]int
	loginFailures  map[string]int
	intentsIssued  map[string]int
	sessionsMinted int
}

func newStubCollector() *stubCollector {
	return &stubCollector{
		loginSuccesses: make(map[string]int),
		loginFailures:  make(map[string]int),
		intentsIssued:  make(map[string]int),
	}
}

func (c *stubCollector) RecordLoginSuccess(method string) { c.loginSuccesses[method]++ }
func (c *stubCollector) RecordLoginFailure(method string, code string) {
	c.loginFailures[method+":"+code]++
}
func (c *stubCollector) RecordIntentIssued(kind string)                { c.intentsIssued[kind]++ }
func (c *stubCollector) RecordSessionMinted()                          { c.sessionsMinted++ }
func (c *stubCollector) RecordSweepDeleted(label string, count int64)  {}
func (c *stubCollector) RecordHTTPStatus(statusCode int)               {}
func (c *stubCollector) RecordRequestLatency(duration time.Duration)   {}

// compile-time interface checks
var _ IntentServiceInterface = (*mockIntentService)(nil)
var _ CredentialServiceInterface = (*mockCredentialService)(nil)
var _ SessionServiceInterface = (*mockSessionService)(nil)
var _ CleanupRunner = (*mockCleanupRunner)(nil)

type handlerMocks struct {
	intents     *mockIntentService
	credentials *mockCredentialService
	sessions    *mockSessionService
	cleanup     *mockCleanupRunner
	collector   *stubCollector
}

func newTestHandler() (*AuthHandler, *handlerMocks) {
	m := &handlerMocks{
		intents:     &mockIntentService{},
		credentials: &mockCredentialService{},
		sessions:    &mockSessionService{},
		cleanup:     &mockCleanupRunner{},
		collector:   newStubCollector(),
	}
	h := NewAuthHandler(m.intents, m.credentials, m.sessions, m.cleanup, m.collector)
	return h, m
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc/test", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- FetchAccount ---

func TestFetchAccount_AuthenticatedReturnsIdentity(t *testing.T) {
	h, m := newTestHandler()
	m.sessions.resolveFunc = func(ctx context.Context, token string) (*model.Identity, error) {
		if token != "valid-token" {
			t.Errorf("token = %q, want valid-token", token)
		}
		return &model.Identity{
			AccountID:     "acc-1",
			Scopes:        []model.Scope{model.ScopeCustomer},
			PasswordLogin: true,
		}, nil
	}

	w := postJSON(t, h.FetchAccount, map[string]string{"session_token": "valid-token"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp fetchAccountResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Identity == nil {
		t.Fatal("identity should be present")
	}
	if resp.Identity.AccountID != "acc-1" {
		t.Errorf("AccountID = %q, want acc-1", resp.Identity.AccountID)
	}
	if len(resp.Identity.Scopes) != 1 || resp.Identity.Scopes[0] != "Customer" {
		t.Errorf("Scopes = %v, want [Customer]", resp.Identity.Scopes)
	}
	if !resp.Identity.PasswordLogin {
		t.Error("PasswordLogin should be true")
	}
}

// 未認証はエラーではなくidentity=nullで返ることを検証
func TestFetchAccount_UnauthenticatedReturnsNullIdentity(t *testing.T) {
	h, m := newTestHandler()
	m.sessions.resolveFunc = func(ctx context.Context, token string) (*model.Identity, error) {
		return nil, nil
	}

	w := postJSON(t, h.FetchAccount, map[string]string{"session_token": "bogus"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp fetchAccountResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Identity != nil {
		t.Errorf("identity should be null, got %+v", resp.Identity)
	}
}

// --- CreateEmailLoginIntent ---

func TestCreateEmailLoginIntent_ReturnsIntentID(t *testing.T) {
	h, m := newTestHandler()
	m.intents.startEmailLoginFunc = func(ctx context.Context, email string) (string, error) {
		return "intent-uuid", nil
	}

	w := postJSON(t, h.CreateEmailLoginIntent, map[string]string{"email": "user@example.com"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var resp createEmailLoginIntentResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.IntentID != "intent-uuid" {
		t.Errorf("IntentID = %q, want intent-uuid", resp.IntentID)
	}
	if m.collector.intentsIssued["email_login"] != 1 {
		t.Error("intent issuance should be recorded")
	}
}

func TestCreateEmailLoginIntent_InvalidEmailReturns400(t *testing.T) {
	h, _ := newTestHandler()

	tests := []string{"", "not-an-email", "a@b@c", "User Name <user@example.com>"}
	for _, email := range tests {
		w := postJSON(t, h.CreateEmailLoginIntent, map[string]string{"email": email})
		if w.Code != http.StatusBadRequest {
			t.Errorf("email %q: status = %d, want 400", email, w.Code)
		}
		body := decodeError(t, w)
		if body.Code != model.ErrCodeInvalidEmail {
			t.Errorf("email %q: code = %q, want %q", email, body.Code, model.ErrCodeInvalidEmail)
		}
	}
}

func TestCreateEmailLoginIntent_BlockedAccountReturns403(t *testing.T) {
	h, m := newTestHandler()
	m.intents.startEmailLoginFunc = func(ctx context.Context, email string) (string, error) {
		return "", model.NewAccountBlockedError()
	}

	w := postJSON(t, h.CreateEmailLoginIntent, map[string]string{"email": "blocked@example.com"})

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeAccountBlocked {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeAccountBlocked)
	}
}

// --- LoginWithEmailLogin ---

func TestLoginWithEmailLogin_ReturnsSessionToken(t *testing.T) {
	h, m := newTestHandler()
	m.intents.completeEmailLoginFunc = func(ctx context.Context, intentID, passcode string) (string, error) {
		return "session-token", nil
	}

	w := postJSON(t, h.LoginWithEmailLogin, map[string]string{
		"intent_id": "intent-uuid",
		"pass_key":  "ABC123",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp sessionTokenResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.SessionToken != "session-token" {
		t.Errorf("SessionToken = %q, want session-token", resp.SessionToken)
	}
	if m.collector.loginSuccesses["email"] != 1 {
		t.Error("login success should be recorded")
	}
	if m.collector.sessionsMinted != 1 {
		t.Error("session minting should be recorded")
	}
}

func TestLoginWithEmailLogin_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        *model.APIError
		wantStatus int
	}{
		{"不正なインテントID", model.NewMalformedIntentIDError(), http.StatusBadRequest},
		{"未知のインテント", model.NewUnknownIntentError(), http.StatusNotFound},
		{"期限切れインテント", model.NewIntentExpiredError(), http.StatusGone},
		{"パスコード不一致", model.NewCodeMismatchError(), http.StatusUnauthorized},
		{"ブロック済み", model.NewAccountBlockedError(), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := newTestHandler()
			m.intents.completeEmailLoginFunc = func(ctx context.Context, intentID, passcode string) (string, error) {
				return "", tt.err
			}

			w := postJSON(t, h.LoginWithEmailLogin, map[string]string{
				"intent_id": "intent-uuid",
				"pass_key":  "ABC123",
			})

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Code != tt.err.Code {
				t.Errorf("code = %q, want %q", body.Code, tt.err.Code)
			}
			if m.collector.loginFailures["email:"+tt.err.Code] != 1 {
				t.Error("login failure should be recorded with error code")
			}
		})
	}
}

// --- CreateNewPassLoginIntent ---

func TestCreateNewPassLoginIntent_ReturnsNoContent(t *testing.T) {
	h, m := newTestHandler()
	m.intents.startPasswordResetFunc = func(ctx context.Context, email string) error {
		return nil
	}

	w := postJSON(t, h.CreateNewPassLoginIntent, map[string]string{"email": "user@example.com"})

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if m.collector.intentsIssued["new_pass_login"] != 1 {
		t.Error("intent issuance should be recorded")
	}
}

// --- LoginWithNewPassLogin ---

func TestLoginWithNewPassLogin_ReturnsSessionToken(t *testing.T) {
	h, m := newTestHandler()
	m.intents.completePasswordResetFunc = func(ctx context.Context, resetToken, newPassword string) (string, error) {
		if newPassword != "new secret" {
			t.Errorf("newPassword = %q, want %q", newPassword, "new secret")
		}
		return "session-token", nil
	}

	w := postJSON(t, h.LoginWithNewPassLogin, map[string]string{
		"token":        "reset-token",
		"new_password": "new secret",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if m.collector.loginSuccesses["reset"] != 1 {
		t.Error("login success should be recorded")
	}
}

func TestLoginWithNewPassLogin_EmptyPasswordReturns400(t *testing.T) {
	h, _ := newTestHandler()

	w := postJSON(t, h.LoginWithNewPassLogin, map[string]string{
		"token":        "reset-token",
		"new_password": "",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestLoginWithNewPassLogin_ExpiredTokenReturns410(t *testing.T) {
	h, m := newTestHandler()
	m.intents.completePasswordResetFunc = func(ctx context.Context, resetToken, newPassword string) (string, error) {
		return "", model.NewResetTokenExpiredError()
	}

	w := postJSON(t, h.LoginWithNewPassLogin, map[string]string{
		"token":        "stale-token",
		"new_password": "new secret",
	})

	if w.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", w.Code)
	}
}

// --- CreateWithPassword / LoginWithPassword ---

func TestCreateWithPassword_Returns201WithToken(t *testing.T) {
	h, m := newTestHandler()
	m.credentials.createWithPasswordFunc = func(ctx context.Context, email, password string) (string, error) {
		return "session-token", nil
	}

	w := postJSON(t, h.CreateWithPassword, map[string]string{
		"email":    "new@example.com",
		"password": "secret123",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
}

func TestCreateWithPassword_DuplicateReturns409(t *testing.T) {
	h, m := newTestHandler()
	m.credentials.createWithPasswordFunc = func(ctx context.Context, email, password string) (string, error) {
		return "", model.NewAccountExistsError()
	}

	w := postJSON(t, h.CreateWithPassword, map[string]string{
		"email":    "taken@example.com",
		"password": "secret123",
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestLoginWithPassword_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        *model.APIError
		wantStatus int
	}{
		{"アカウント不在", model.NewNoAccountError(), http.StatusNotFound},
		{"パスワードログイン非対応", model.NewNoPasswordLoginError(), http.StatusConflict},
		{"パスワード不一致", model.NewWrongPasswordError(), http.StatusUnauthorized},
		{"ブロック済み", model.NewAccountBlockedError(), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := newTestHandler()
			m.credentials.loginWithPasswordFunc = func(ctx context.Context, email, password string) (string, error) {
				return "", tt.err
			}

			w := postJSON(t, h.LoginWithPassword, map[string]string{
				"email":    "user@example.com",
				"password": "secret123",
			})

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestLoginWithPassword_EmptyPasswordReturns400(t *testing.T) {
	h, _ := newTestHandler()

	w := postJSON(t, h.LoginWithPassword, map[string]string{
		"email":    "user@example.com",
		"password": "",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

// --- CleanupDB ---

func TestCleanupDB_ReturnsDeletedCount(t *testing.T) {
	h, m := newTestHandler()
	m.cleanup.runFunc = func(ctx context.Context) (int64, error) {
		return 42, nil
	}

	w := postJSON(t, h.CleanupDB, map[string]string{})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp cleanupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Deleted != 42 {
		t.Errorf("Deleted = %d, want 42", resp.Deleted)
	}
}

// --- 共通バリデーション ---

func TestHandlers_MalformedJSONReturns400(t *testing.T) {
	h, _ := newTestHandler()

	handlers := map[string]http.HandlerFunc{
		"fetch_account":                h.FetchAccount,
		"create_email_login_intent":    h.CreateEmailLoginIntent,
		"login_with_email_login":       h.LoginWithEmailLogin,
		"create_new_pass_login_intent": h.CreateNewPassLoginIntent,
		"login_with_new_pass_login":    h.LoginWithNewPassLogin,
		"create_with_password":         h.CreateWithPassword,
		"login_with_password":          h.LoginWithPassword,
	}

	for name, fn := range handlers {
		req := httptest.NewRequest(http.MethodPost, "/rpc/"+name, bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		fn(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}
