package tasks

import (
	"context"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

// Repository is the durable store for tasks, stars, and audit entries.
//
// Get/List exclude soft-deleted rows and compute the viewer-relative star
// flag. Update is the optimistic-concurrency gate: it only touches a row
// whose stored version equals expectedVersion and reports
// common.ErrVersionConflict otherwise.
type Repository interface {
	Insert(ctx context.Context, t *models.Task) error
	Get(ctx context.Context, id, viewerID string) (*models.Task, error)
	Update(ctx context.Context, t *models.Task, expectedVersion int64) error
	ReplaceAssignees(ctx context.Context, taskID string, assignees []string) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	Restore(ctx context.Context, id string, at time.Time) error

	// Star/Unstar are idempotent; the bool reports whether a row was
	// actually created/removed.
	Star(ctx context.Context, star *models.TaskStar) (bool, error)
	Unstar(ctx context.Context, taskID, userID string) (bool, error)

	List(ctx context.Context, q models.TaskListQuery, viewerID string) ([]models.Task, int, error)
	ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.Task, error)
	ListDeletedSince(ctx context.Context, since time.Time, limit int) ([]string, error)

	AppendAudit(ctx context.Context, a *models.TaskAudit) error
	ListAudits(ctx context.Context, taskID string) ([]models.TaskAudit, error)
}
