package mailer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSend_PostsJSONToSendEndpoint(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, discardLogger())

	err := client.Send(context.Background(), "user@example.com", "件名", "<h1>ABC123</h1>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/send" {
		t.Errorf("path = %q, want %q", gotPath, "/send")
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotBody["email"] != "user@example.com" {
		t.Errorf("email = %q, want %q", gotBody["email"], "user@example.com")
	}
	if gotBody["subject"] != "件名" {
		t.Errorf("subject = %q, want %q", gotBody["subject"], "件名")
	}
	if gotBody["body_html"] != "<h1>ABC123</h1>" {
		t.Errorf("body_html = %q, want %q", gotBody["body_html"], "<h1>ABC123</h1>")
	}
}

func TestSend_NonSuccessStatusReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, discardLogger())

	err := client.Send(context.Background(), "user@example.com", "件名", "<p>body</p>")
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestSend_ConnectionErrorReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 接続先を閉じておく

	client := NewClient(http.DefaultClient, server.URL, discardLogger())

	err := client.Send(context.Background(), "user@example.com", "件名", "<p>body</p>")
	if err == nil {
		t.Fatal("expected error when mail service is unreachable")
	}
}
