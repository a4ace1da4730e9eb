// Package cleanup は期限切れエフェメラルレコードの定期削除ジョブを提供する。
// ログインインテント2種とセッションを同一のカットオフ時刻で走査して削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/authman/internal/metrics"
	"github.com/hitoshi/authman/internal/repository"
)

// Sweeper は期限切れレコードの一括削除ジョブ。
// 正しさはリクエスト処理側の遅延期限判定が担保しており、
// スイープはストレージ膨張を抑えるための保守作業にすぎない。
type Sweeper struct {
	repos   []repository.ExpirableRepository
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewSweeper は新しいSweeperを生成する。
// reposの順に削除を実行する。対象テーブルを増やす場合はここに足すだけでよい。
func NewSweeper(repos []repository.ExpirableRepository, logger *slog.Logger, collector metrics.MetricsCollector) *Sweeper {
	return &Sweeper{
		repos:   repos,
		logger:  logger,
		metrics: collector,
	}
}

// Run は全対象テーブルの期限切れレコードを削除し、合計削除件数を返す。
// カットオフ時刻は実行開始時に1回だけ取得し、全テーブルに同じ値を適用する。
// 1テーブルの失敗で残りを止めず、発生した全エラーをまとめて返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := start.UTC()

	var total int64
	var errs []error
	for _, repo := range s.repos {
		deleted, err := repo.DeleteExpired(ctx, cutoff)
		if err != nil {
			s.logger.Error("failed to sweep expired records",
				slog.String("table", repo.Label()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("sweep %s: %w", repo.Label(), err))
			continue
		}

		total += deleted
		s.metrics.RecordSweepDeleted(repo.Label(), deleted)
		s.logger.Info("swept expired records",
			slog.String("table", repo.Label()),
			slog.Int64("deleted_count", deleted),
		)
	}

	s.logger.Info("cleanup job finished",
		slog.Int64("total_deleted", total),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return total, errors.Join(errs...)
}
