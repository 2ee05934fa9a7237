package persistence

import (
	"context"
	"fmt"
	"time"
)

// RetentionResult reports how many rows a retention sweep removed.
type RetentionResult struct {
	CompletedTasksPurged int64
	MessagesPurged       int64
}

// RunRetention deletes completed tasks and chat messages older than the
// given windows. A window of 0 days means keep forever.
func (s *Store) RunRetention(ctx context.Context, completedTaskDays, messageDays int) (RetentionResult, error) {
	var result RetentionResult

	if completedTaskDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -completedTaskDays)
		err := retryOnBusy(ctx, 5, func() error {
			res, err := s.db.ExecContext(ctx, `
				DELETE FROM tasks
				WHERE status = 'completed' AND completed_at IS NOT NULL AND completed_at < ?;
			`, cutoff)
			if err != nil {
				return fmt.Errorf("purge completed tasks: %w", err)
			}
			result.CompletedTasksPurged, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return result, err
		}
	}

	if messageDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -messageDays)
		err := retryOnBusy(ctx, 5, func() error {
			res, err := s.db.ExecContext(ctx, `
				DELETE FROM messages WHERE created_at < ?;
			`, cutoff)
			if err != nil {
				return fmt.Errorf("purge messages: %w", err)
			}
			result.MessagesPurged, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return result, err
		}
	}

	return result, nil
}
