// Package token はセッショントークン・パスコード用の乱数文字列生成を提供する。
// 乱数源はio.Readerとして注入可能で、本番ではcrypto/rand.Readerを使用する。
// テストでは決定的なReaderに差し替えられる。
package token

import (
	"crypto/rand"
	"fmt"
	"io"
)

// alphabet はトークンとパスコードに使う英数字62文字。
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Source は暗号学的に安全な乱数文字列の生成器。
// プロセス全体で1つ生成し、利用する各サービスへ明示的に注入する。
type Source struct {
	reader io.Reader
}

// NewSource はSourceを生成する。readerがnilの場合はcrypto/rand.Readerを使用する。
func NewSource(reader io.Reader) *Source {
	if reader == nil {
		reader = rand.Reader
	}
	return &Source{reader: reader}
}

// Alphanumeric は長さnの英数字ランダム文字列を生成する。
// 剰余バイアスを避けるため、62の倍数未満のバイト値のみ採用する棄却サンプリングを行う。
func (s *Source) Alphanumeric(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive: %d", n)
	}

	// 248 = 62 * 4。これ以上のバイト値は棄却する。
	const limit = 248

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(s.reader, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}
