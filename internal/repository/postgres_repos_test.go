package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/authman/internal/model"
)

// 各PostgresリポジトリがインターフェースとExpirableRepositoryを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ AccountRepository = (*PostgresAccountRepo)(nil)
	var _ ScopeRepository = (*PostgresScopeRepo)(nil)
	var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
	var _ EmailLoginIntentRepository = (*PostgresEmailLoginIntentRepo)(nil)
	var _ NewPassLoginIntentRepository = (*PostgresNewPassLoginIntentRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)

	var _ ExpirableRepository = (*PostgresEmailLoginIntentRepo)(nil)
	var _ ExpirableRepository = (*PostgresNewPassLoginIntentRepo)(nil)
	var _ ExpirableRepository = (*PostgresSessionRepo)(nil)
}

// 各コンストラクタが正しく初期化されることを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresAccountRepo(nil) == nil {
		t.Error("expected non-nil account repo")
	}
	if NewPostgresScopeRepo(nil) == nil {
		t.Error("expected non-nil scope repo")
	}
	if NewPostgresCredentialRepo(nil) == nil {
		t.Error("expected non-nil credential repo")
	}
	if NewPostgresEmailLoginIntentRepo(nil) == nil {
		t.Error("expected non-nil email login intent repo")
	}
	if NewPostgresNewPassLoginIntentRepo(nil) == nil {
		t.Error("expected non-nil new pass login intent repo")
	}
	if NewPostgresSessionRepo(nil) == nil {
		t.Error("expected non-nil session repo")
	}
}

// Labelがスイープ対象のテーブル名と一致することを検証。
// メトリクスのtableラベルとログに使われるため、マイグレーションのテーブル名と揃える。
func TestExpirableRepos_Labels(t *testing.T) {
	tests := []struct {
		repo ExpirableRepository
		want string
	}{
		{NewPostgresEmailLoginIntentRepo(nil), "email_login_intents"},
		{NewPostgresNewPassLoginIntentRepo(nil), "new_pass_login_intents"},
		{NewPostgresSessionRepo(nil), "sessions"},
	}

	for _, tt := range tests {
		if got := tt.repo.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

// 各リポジトリのSQLが参照するテーブルがマイグレーションで作成されることを検証。
// テーブル名の食い違いはDB接続がないと発覚しないため、ここで突き合わせる。
func TestRepoTables_MatchMigrationSchema(t *testing.T) {
	migration, err := os.ReadFile("../database/migrations/000001_create_auth_tables.up.sql")
	if err != nil {
		t.Fatalf("failed to read migration file: %v", err)
	}
	schema := string(migration)

	tables := []string{
		"accounts",
		"scopes",
		"password_credentials",
		"sessions",
		"email_login_intents",
		"new_pass_login_intents",
	}

	for _, table := range tables {
		if !strings.Contains(schema, "CREATE TABLE "+table+" (") {
			t.Errorf("table %q is queried by a repository but not created by the migration", table)
		}
	}
}

// FindByTokenは期限切れでも行を返す契約であることの検証。
// 期限判定と遅延削除はサービス層の責務であり、リポジトリは素通しする。
func TestSessionRepo_ExpiryIsServiceConcern_Concept(t *testing.T) {
	session := &model.Session{
		Token:     "expired-session-token",
		AccountID: "account-1",
		ExpiresAt: time.Now().Add(-1 * time.Hour),
	}

	if session.ExpiresAt.After(time.Now()) {
		t.Error("expected session to be expired")
	}
}
