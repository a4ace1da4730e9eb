// Package mailer は外部メール送信サービスのHTTPクライアントを提供する。
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client は外部メール送信サービスのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// sendRequest はメール送信サービスへのリクエストボディ。
type sendRequest struct {
	Email    string `json:"email"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
}

// Send は指定アドレスへHTML形式のメールを1通送信する。
// メール送信サービスが2xx以外を返した場合はエラーを返す。
func (c *Client) Send(ctx context.Context, email, subject, bodyHTML string) error {
	body, err := json.Marshal(sendRequest{
		Email:    email,
		Subject:  subject,
		BodyHTML: bodyHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send mail request: %w", err)
	}
	defer resp.Body.Close()

	// コネクション再利用のためボディは読み捨てる
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("mail service returned non-success status",
			slog.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("mail service returned status %d", resp.StatusCode)
	}

	return nil
}
