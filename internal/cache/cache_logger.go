package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateAttemptCache drops all cached rows touched by an attempt write
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint) {
	SafeDelete(ctx, cm.Fast, fmt.Sprintf("attempt:id:%d", attemptID))
	SafeInvalidatePattern(ctx, cm.Fast, fmt.Sprintf("attempt:%d:*", attemptID))
}

// InvalidateSubmissionCache drops the cached status row for a pair
func InvalidateSubmissionCache(ctx context.Context, cm *CacheManager, assignmentID uint, studentID string) {
	SafeDelete(ctx, cm.Assignment,
		fmt.Sprintf("submission:%d:%s", assignmentID, studentID))
	SafeInvalidatePattern(ctx, cm.Assignment, fmt.Sprintf("assignment:%d:*", assignmentID))
}
