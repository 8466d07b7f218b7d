package app

import (
	"context"
	"sync"
	"time"

	"authcore/internal/logger"

	"go.uber.org/zap"
)

// CleanupJob: периодическая чистка хранилища. Возвращает число удалённых записей.
type CleanupJob struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// StartCleaner запускает jobs по тикеру до отмены ctx. Первый прогон сразу.
func StartCleaner(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, jobs ...CleanupJob) {
	if interval <= 0 {
		interval = time.Hour
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		runJobs(ctx, jobs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				runJobs(ctx, jobs)
			}
		}
	}()
}

func runJobs(ctx context.Context, jobs []CleanupJob) {
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		n, err := job.Run(ctx)
		if err != nil {
			logger.Log.Warn("Ошибка периодической чистки", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		if n > 0 {
			logger.Log.Info("Периодическая чистка", zap.String("job", job.Name), zap.Int64("deleted", n))
		}
	}
}
