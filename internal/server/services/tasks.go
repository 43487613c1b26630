package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/dbx"
	"github.com/bashaMendi/ToDo-back/internal/logging"
	"github.com/bashaMendi/ToDo-back/internal/server/config"
	"github.com/bashaMendi/ToDo-back/internal/server/events"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
	"github.com/bashaMendi/ToDo-back/internal/server/querycache"
	"github.com/bashaMendi/ToDo-back/internal/server/repositories/repomanager"
)

const undoKeyPrefix = "undo:"

// List pagination bounds and /sync batch limits.
const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	syncUpdatedLimit = 100
	syncDeletedLimit = 50
)

// EventPublisher is the slice of the hub the task service needs. A nil
// publisher disables fan-out without touching the mutation paths.
type EventPublisher interface {
	Publish(e models.Event)
	PublishToUser(userID string, e models.Event)
}

// TaskService implements every task mutation and query. Mutations follow a
// fixed ordering: commit the transaction (row + audit together), invalidate
// the query cache, then publish events fire-and-forget. Events are emitted
// only for committed state.
type TaskService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	cache  *querycache.Cache
	store  kvstore.Store
	pub    EventPublisher
	cfg    *config.Config
	logger logging.Logger
}

// NewTaskService wires the task service. pub may be nil.
func NewTaskService(db *sql.DB, repos repomanager.RepositoryManager, cache *querycache.Cache, store kvstore.Store, pub EventPublisher, cfg *config.Config, logger logging.Logger) *TaskService {
	return &TaskService{
		db:     db,
		repos:  repos,
		cache:  cache,
		store:  store,
		pub:    pub,
		cfg:    cfg,
		logger: logger.With("module", "tasks"),
	}
}

// Create inserts a new task at version 1 with the actor as creator.
func (s *TaskService) Create(ctx context.Context, title, description string, actor models.UserSnapshot) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if len(description) > models.DescriptionMaxLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", common.ErrorValidation, models.DescriptionMaxLen)
	}

	now := time.Now().UTC()
	t := &models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedBy:   actor.ID,
		UpdatedAt:   now,
		Assignees:   []string{},
		Version:     1,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Tasks(tx)
		if err := repo.Insert(ctx, t); err != nil {
			return err
		}
		return repo.AppendAudit(ctx, s.audit(t.ID, actor.ID, models.AuditCreate, map[string]any{
			"title":       t.Title,
			"description": t.Description,
			"version":     t.Version,
		}, nil))
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.publish(events.New(models.EventTaskCreated, map[string]any{"task": t}))
	return t, nil
}

// Get returns the task with the viewer-relative star flag.
func (s *TaskService) Get(ctx context.Context, id, viewerID string) (*models.Task, error) {
	return s.repos.Tasks(s.db).Get(ctx, id, viewerID)
}

// Update applies a partial patch under optimistic concurrency. When
// expectedVersion is non-nil and does not match the stored version, nothing
// is written and common.ErrVersionConflict is returned; the same applies if
// a concurrent writer wins the race inside the transaction.
func (s *TaskService) Update(ctx context.Context, id string, patch models.TaskPatch, actor models.UserSnapshot, expectedVersion *int64) (*models.Task, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: empty patch", common.ErrorValidation)
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var updated *models.Task
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Tasks(tx)

		current, err := repo.Get(ctx, id, actor.ID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != current.Version {
			return common.ErrVersionConflict
		}

		next := *current
		if patch.Title != nil {
			next.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			next.Description = *patch.Description
		}
		next.UpdatedBy = actor.ID
		next.UpdatedAt = time.Now().UTC()

		if err := repo.Update(ctx, &next, current.Version); err != nil {
			return err
		}
		if patch.Assignees != nil {
			if err := repo.ReplaceAssignees(ctx, id, *patch.Assignees); err != nil {
				return err
			}
			next.Assignees = append([]string{}, *patch.Assignees...)
		}

		diff := patchDiff(patch)
		diff["version"] = next.Version
		diff["editor"] = actor.ID
		if err := repo.AppendAudit(ctx, s.audit(id, actor.ID, models.AuditUpdate, diff, nil)); err != nil {
			return err
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)

	payload := patchDiff(patch)
	payload["taskId"] = id
	payload["version"] = updated.Version
	payload["updatedAt"] = updated.UpdatedAt
	s.publish(events.New(models.EventTaskUpdated, payload))
	return updated, nil
}

// Delete soft-deletes the task and hands back a short-lived undo token. The
// row keeps its version; updated_at moves so incremental sync can observe
// the deletion.
func (s *TaskService) Delete(ctx context.Context, id string, actor models.UserSnapshot) (string, error) {
	now := time.Now().UTC()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Tasks(tx)
		if _, err := repo.Get(ctx, id, actor.ID); err != nil {
			return err
		}
		if err := repo.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		return repo.AppendAudit(ctx, s.audit(id, actor.ID, models.AuditDelete, map[string]any{"deleted": true}, nil))
	})
	if err != nil {
		return "", err
	}

	undoToken, err := common.MakeRandHexString(16)
	if err == nil {
		if serr := s.store.Set(ctx, undoKeyPrefix+undoToken, id, s.cfg.UndoTokenDuration); serr != nil {
			s.logger.Warn(ctx, "undo token not stored", "taskId", id, "error", serr)
			undoToken = ""
		}
	} else {
		undoToken = ""
	}

	s.cache.Invalidate(ctx)
	s.publish(events.New(models.EventTaskDeleted, map[string]any{"taskId": id}))
	return undoToken, nil
}

// Restore redeems an undo token, bringing the soft-deleted task back with
// its version untouched. Tokens are single use.
func (s *TaskService) Restore(ctx context.Context, undoToken string, actor models.UserSnapshot) (*models.Task, error) {
	taskID, err := s.store.Get(ctx, undoKeyPrefix+undoToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	_ = s.store.Delete(ctx, undoKeyPrefix+undoToken)

	var restored *models.Task
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Tasks(tx)
		if err := repo.Restore(ctx, taskID, time.Now().UTC()); err != nil {
			return err
		}
		t, err := repo.Get(ctx, taskID, actor.ID)
		if err != nil {
			return err
		}
		if err := repo.AppendAudit(ctx, s.audit(taskID, actor.ID, models.AuditUpdate, map[string]any{"restored": true}, nil)); err != nil {
			return err
		}
		restored = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.publish(events.New(models.EventTaskCreated, map[string]any{"task": restored}))
	return restored, nil
}

// Duplicate copies an existing task into a fresh one: new id, version 1, the
// actor as creator, title suffixed with a copy marker. Stars are personal
// and do not carry over.
func (s *TaskService) Duplicate(ctx context.Context, sourceID string, actor models.UserSnapshot) (*models.Task, error) {
	now := time.Now().UTC()
	var dup *models.Task
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Tasks(tx)

		src, err := repo.Get(ctx, sourceID, actor.ID)
		if err != nil {
			return err
		}

		title := truncateTitle(src.Title + " (copy)")
		dup = &models.Task{
			ID:          uuid.NewString(),
			Title:       title,
			Description: src.Description,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedBy:   actor.ID,
			UpdatedAt:   now,
			Assignees:   append([]string{}, src.Assignees...),
			Version:     1,
		}
		if err := repo.Insert(ctx, dup); err != nil {
			return err
		}
		return repo.AppendAudit(ctx, s.audit(dup.ID, actor.ID, models.AuditDuplicate,
			map[string]any{"title": dup.Title, "version": dup.Version},
			map[string]any{"sourceTaskId": sourceID}))
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.publish(events.New(models.EventTaskCreated, map[string]any{"task": dup}))
	return dup, nil
}

// AssignSelf adds the actor to the assignee list. Assigning an already
// assigned user is a no-op that emits nothing.
func (s *TaskService) AssignSelf(ctx context.Context, id string, actor models.UserSnapshot) error {
	var changed bool
	var version int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Tasks(tx)

		current, err := repo.Get(ctx, id, actor.ID)
		if err != nil {
			return err
		}
		for _, a := range current.Assignees {
			if a == actor.ID {
				return nil
			}
		}
		if len(current.Assignees) >= models.MaxAssignees {
			return fmt.Errorf("%w: at most %d assignees", common.ErrorValidation, models.MaxAssignees)
		}

		next := *current
		next.UpdatedBy = actor.ID
		next.UpdatedAt = time.Now().UTC()
		if err := repo.Update(ctx, &next, current.Version); err != nil {
			return err
		}
		assignees := append(append([]string{}, current.Assignees...), actor.ID)
		if err := repo.ReplaceAssignees(ctx, id, assignees); err != nil {
			return err
		}
		if err := repo.AppendAudit(ctx, s.audit(id, actor.ID, models.AuditUpdate, map[string]any{
			"assignees": assignees,
			"version":   next.Version,
			"editor":    actor.ID,
		}, nil)); err != nil {
			return err
		}

		changed = true
		version = next.Version
		return nil
	})
	if err != nil || !changed {
		return err
	}

	s.cache.Invalidate(ctx)
	e := events.New(models.EventTaskAssigned, map[string]any{
		"taskId":     id,
		"assigneeId": actor.ID,
		"version":    version,
	})
	s.publish(e)
	s.publishToUser(actor.ID, e)
	return nil
}

// Star marks the task for the actor. Idempotent; only a first-time star
// emits an event or touches the cache.
func (s *TaskService) Star(ctx context.Context, taskID string, actor models.UserSnapshot) error {
	repo := s.repos.Tasks(s.db)
	if _, err := repo.Get(ctx, taskID, actor.ID); err != nil {
		return err
	}

	created, err := repo.Star(ctx, &models.TaskStar{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		UserID:    actor.ID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil || !created {
		return err
	}

	s.cache.Invalidate(ctx)
	e := events.New(models.EventStarAdded, map[string]any{"taskId": taskID, "userId": actor.ID})
	s.publish(e)
	s.publishToUser(actor.ID, e)
	return nil
}

// Unstar removes the actor's star. Removing an absent star, even on an
// absent task, succeeds silently.
func (s *TaskService) Unstar(ctx context.Context, taskID string, actor models.UserSnapshot) error {
	removed, err := s.repos.Tasks(s.db).Unstar(ctx, taskID, actor.ID)
	if err != nil || !removed {
		return err
	}

	s.cache.Invalidate(ctx)
	e := events.New(models.EventStarRemoved, map[string]any{"taskId": taskID, "userId": actor.ID})
	s.publish(e)
	s.publishToUser(actor.ID, e)
	return nil
}

// List serves one page, read-through the query cache. Cache failures fall
// back to the database silently.
func (s *TaskService) List(ctx context.Context, q models.TaskListQuery, viewerID string) (*models.TaskPage, error) {
	q = normalizeQuery(q)

	if page, ok := s.cache.Get(ctx, q, viewerID); ok {
		return page, nil
	}

	items, total, err := s.repos.Tasks(s.db).List(ctx, q, viewerID)
	if err != nil {
		return nil, err
	}
	page := &models.TaskPage{
		Items:   items,
		Page:    q.Page,
		Total:   total,
		HasMore: q.Page*q.Limit < total,
	}
	s.cache.Put(ctx, q, viewerID, page)
	return page, nil
}

// ExportMine returns every task the viewer created or is assigned to,
// oldest first, without pagination.
func (s *TaskService) ExportMine(ctx context.Context, viewerID string) ([]models.Task, error) {
	items, _, err := s.repos.Tasks(s.db).List(ctx, models.TaskListQuery{
		Context:   models.ContextMine,
		SortBy:    "createdAt",
		SortOrder: "asc",
	}, viewerID)
	return items, err
}

// Sync returns tasks touched since the given instant plus ids of tasks
// deleted since then, capped per batch so clients page through large gaps.
func (s *TaskService) Sync(ctx context.Context, since time.Time, viewerID string) ([]models.Task, []string, error) {
	repo := s.repos.Tasks(s.db)
	updated, err := repo.ListUpdatedSince(ctx, since, syncUpdatedLimit)
	if err != nil {
		return nil, nil, err
	}
	deleted, err := repo.ListDeletedSince(ctx, since, syncDeletedLimit)
	if err != nil {
		return nil, nil, err
	}
	if updated == nil {
		updated = []models.Task{}
	}
	if deleted == nil {
		deleted = []string{}
	}
	return updated, deleted, nil
}

// Audits returns the task's audit trail, oldest first.
func (s *TaskService) Audits(ctx context.Context, taskID string) ([]models.TaskAudit, error) {
	return s.repos.Tasks(s.db).ListAudits(ctx, taskID)
}

func (s *TaskService) publish(e models.Event) {
	if s.pub != nil {
		s.pub.Publish(e)
	}
}

func (s *TaskService) publishToUser(userID string, e models.Event) {
	if s.pub != nil {
		s.pub.PublishToUser(userID, e)
	}
}

func (s *TaskService) audit(taskID, by string, action models.AuditAction, diff, metadata map[string]any) *models.TaskAudit {
	a := &models.TaskAudit{
		ID:     uuid.NewString(),
		TaskID: taskID,
		At:     time.Now().UTC(),
		By:     by,
		Action: action,
	}
	if diff != nil {
		a.Diff, _ = json.Marshal(diff)
	}
	if metadata != nil {
		a.Metadata, _ = json.Marshal(metadata)
	}
	return a
}

func patchDiff(p models.TaskPatch) map[string]any {
	diff := map[string]any{}
	if p.Title != nil {
		diff["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		diff["description"] = *p.Description
	}
	if p.Assignees != nil {
		diff["assignees"] = *p.Assignees
	}
	return diff
}

// truncateTitle caps the title at the storage limit without splitting a
// multi-byte rune.
func truncateTitle(title string) string {
	if len(title) <= models.TitleMaxLen {
		return title
	}
	cut := models.TitleMaxLen
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut]
}

func validateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", common.ErrorValidation)
	}
	if len(title) > models.TitleMaxLen {
		return fmt.Errorf("%w: title exceeds %d characters", common.ErrorValidation, models.TitleMaxLen)
	}
	return nil
}

func validatePatch(p models.TaskPatch) error {
	if p.Title != nil {
		if err := validateTitle(strings.TrimSpace(*p.Title)); err != nil {
			return err
		}
	}
	if p.Description != nil && len(*p.Description) > models.DescriptionMaxLen {
		return fmt.Errorf("%w: description exceeds %d characters", common.ErrorValidation, models.DescriptionMaxLen)
	}
	if p.Assignees != nil {
		if len(*p.Assignees) > models.MaxAssignees {
			return fmt.Errorf("%w: at most %d assignees", common.ErrorValidation, models.MaxAssignees)
		}
		seen := make(map[string]struct{}, len(*p.Assignees))
		for _, a := range *p.Assignees {
			if _, dup := seen[a]; dup {
				return fmt.Errorf("%w: duplicate assignee %q", common.ErrorValidation, a)
			}
			seen[a] = struct{}{}
		}
	}
	return nil
}

// normalizeQuery fills defaults and clamps pagination and sorting to the
// supported space.
func normalizeQuery(q models.TaskListQuery) models.TaskListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	switch q.SortBy {
	case "createdAt", "updatedAt", "title", "createdBy":
	default:
		q.SortBy = "createdAt"
	}
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
	switch q.Context {
	case models.ContextAll, models.ContextMine, models.ContextStarred:
	default:
		q.Context = models.ContextAll
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}
