package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const scanConcurrency = 4

// ScanOverdue reports every open borrowing whose expected return date is
// before today. Read-only: the scan never mutates records. Returns the
// number of overdue records found.
func (s *Service) ScanOverdue(ctx context.Context, today time.Time) (int, error) {
	overdue, err := s.repo.ListOverdue(ctx, toDate(today))
	if err != nil {
		return 0, err
	}

	if len(overdue) == 0 {
		s.notify(ctx, "No borrowings overdue today!")
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, b := range overdue {
		b := b
		g.Go(func() error {
			return s.notifier.Notify(ctx, fmt.Sprintf(
				"Overdue borrowing: user %s, book %s, expected return date %s",
				b.Username, b.BookUid, b.ExpectedReturnDate.Format(time.DateOnly)))
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("overdue notifications", zap.Error(err))
	}
	return len(overdue), nil
}

// RunOverdueScanner is the periodic trigger adapter around ScanOverdue.
func (s *Service) RunOverdueScanner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.ScanOverdue(ctx, time.Now().UTC()); err != nil {
				s.log.Error("overdue scan", zap.Error(err))
			} else {
				s.log.Debug("overdue scan done", zap.Int("overdue", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
