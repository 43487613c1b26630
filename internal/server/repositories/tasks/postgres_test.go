package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

const testSchema = `
CREATE TABLE tasks (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_by  TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    updated_by  TEXT,
    updated_at  TIMESTAMP NOT NULL,
    version     BIGINT NOT NULL DEFAULT 1,
    is_deleted  BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE task_assignees (
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (task_id, user_id)
);
CREATE TABLE task_stars (
    id         TEXT PRIMARY KEY,
    task_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (task_id, user_id)
);
CREATE TABLE task_audits (
    id       TEXT PRIMARY KEY,
    task_id  TEXT NOT NULL,
    at       TIMESTAMP NOT NULL,
    by_user  TEXT NOT NULL,
    action   TEXT NOT NULL,
    diff     TEXT NOT NULL,
    metadata TEXT
);
`

func setupRepo(t *testing.T) *PostgresRepository {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return NewPostgresRepository(db)
}

func newTask(title, creator string) *models.Task {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Task{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
		Assignees: []string{},
		Version:   1,
	}
}

func TestInsertAndGet(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	task := newTask("write report", "u-1")
	task.Description = "quarterly numbers"
	require.NoError(t, r.Insert(ctx, task))

	got, err := r.Get(ctx, task.ID, "u-2")
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, "write report", got.Title)
	require.Equal(t, "quarterly numbers", got.Description)
	require.EqualValues(t, 1, got.Version)
	require.Empty(t, got.Assignees)
	require.False(t, got.IsStarred)
}

func TestGet_UnknownIsNotFound(t *testing.T) {
	r := setupRepo(t)
	_, err := r.Get(context.Background(), "nope", "u-1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate_VersionGate(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	task := newTask("draft", "u-1")
	require.NoError(t, r.Insert(ctx, task))

	task.Title = "final"
	task.UpdatedBy = "u-2"
	task.UpdatedAt = time.Now().UTC()
	require.NoError(t, r.Update(ctx, task, 1))
	require.EqualValues(t, 2, task.Version)

	// stale expected version must not mutate the row
	task.Title = "stale write"
	err := r.Update(ctx, task, 1)
	require.ErrorIs(t, err, common.ErrVersionConflict)

	got, err := r.Get(ctx, task.ID, "u-1")
	require.NoError(t, err)
	require.Equal(t, "final", got.Title)
	require.EqualValues(t, 2, got.Version)
}

func TestSoftDelete_HidesTask(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	task := newTask("ephemeral", "u-1")
	require.NoError(t, r.Insert(ctx, task))
	require.NoError(t, r.SoftDelete(ctx, task.ID, time.Now().UTC()))

	_, err := r.Get(ctx, task.ID, "u-1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	// deleting again reports not found (no active row)
	require.ErrorIs(t, r.SoftDelete(ctx, task.ID, time.Now().UTC()), common.ErrorNotFound)

	// version untouched by delete
	require.NoError(t, r.Restore(ctx, task.ID, time.Now().UTC()))
	got, err := r.Get(ctx, task.ID, "u-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Version)
}

func TestStar_Idempotent(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	task := newTask("starrable", "u-1")
	require.NoError(t, r.Insert(ctx, task))

	created, err := r.Star(ctx, &models.TaskStar{TaskID: task.ID, UserID: "u-2", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.True(t, created)

	created, err = r.Star(ctx, &models.TaskStar{TaskID: task.ID, UserID: "u-2", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.False(t, created, "second star must be a no-op")

	got, err := r.Get(ctx, task.ID, "u-2")
	require.NoError(t, err)
	require.True(t, got.IsStarred)

	removed, err := r.Unstar(ctx, task.ID, "u-2")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = r.Unstar(ctx, task.ID, "u-2")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestList_Contexts(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	mine := newTask("mine by creation", "viewer")
	require.NoError(t, r.Insert(ctx, mine))

	assigned := newTask("mine by assignment", "other")
	assigned.Assignees = []string{"viewer"}
	require.NoError(t, r.Insert(ctx, assigned))

	foreign := newTask("someone else's", "other")
	require.NoError(t, r.Insert(ctx, foreign))

	starred := newTask("starred one", "other")
	require.NoError(t, r.Insert(ctx, starred))
	_, err := r.Star(ctx, &models.TaskStar{TaskID: starred.ID, UserID: "viewer", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	all, total, err := r.List(ctx, models.TaskListQuery{Context: models.ContextAll, Page: 1, Limit: 20}, "viewer")
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, all, 4)

	mineItems, total, err := r.List(ctx, models.TaskListQuery{Context: models.ContextMine, Page: 1, Limit: 20}, "viewer")
	require.NoError(t, err)
	require.Equal(t, 2, total)
	ids := []string{mineItems[0].ID, mineItems[1].ID}
	require.ElementsMatch(t, []string{mine.ID, assigned.ID}, ids)

	starredItems, total, err := r.List(ctx, models.TaskListQuery{Context: models.ContextStarred, Page: 1, Limit: 20}, "viewer")
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, starred.ID, starredItems[0].ID)
	require.True(t, starredItems[0].IsStarred)
}

func TestList_SearchAndSort(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	a := newTask("Alpha report", "u-1")
	require.NoError(t, r.Insert(ctx, a))
	b := newTask("beta notes", "u-1")
	b.Description = "mentions ALPHA too"
	require.NoError(t, r.Insert(ctx, b))
	c := newTask("gamma", "u-1")
	require.NoError(t, r.Insert(ctx, c))

	items, total, err := r.List(ctx, models.TaskListQuery{
		Context: models.ContextAll, Search: "alpha", Page: 1, Limit: 20,
		SortBy: "title", SortOrder: "asc",
	}, "u-1")
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "Alpha report", items[0].Title)
	require.Equal(t, "beta notes", items[1].Title)
}

func TestList_Pagination(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		task := newTask("task", "u-1")
		task.CreatedAt = task.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, r.Insert(ctx, task))
	}

	seen := map[string]int{}
	for page := 1; page <= 3; page++ {
		items, total, err := r.List(ctx, models.TaskListQuery{
			Context: models.ContextAll, Page: page, Limit: 2,
			SortBy: "createdAt", SortOrder: "asc",
		}, "u-1")
		require.NoError(t, err)
		require.Equal(t, 5, total)
		for _, it := range items {
			seen[it.ID]++
		}
	}
	require.Len(t, seen, 5, "union of pages covers every task")
	for id, n := range seen {
		require.Equal(t, 1, n, "task %s appeared %d times", id, n)
	}
}

func TestList_ExcludesSoftDeleted(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	task := newTask("to delete", "u-1")
	require.NoError(t, r.Insert(ctx, task))
	require.NoError(t, r.SoftDelete(ctx, task.ID, time.Now().UTC()))

	for _, lc := range []models.ListContext{models.ContextAll, models.ContextMine, models.ContextStarred} {
		items, total, err := r.List(ctx, models.TaskListQuery{Context: lc, Page: 1, Limit: 20}, "u-1")
		require.NoError(t, err)
		require.Zero(t, total, "context %s", lc)
		require.Empty(t, items, "context %s", lc)
	}
}

func TestSync_UpdatedAndDeletedSince(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	since := time.Now().UTC().Add(-time.Hour)

	live := newTask("live", "u-1")
	require.NoError(t, r.Insert(ctx, live))

	gone := newTask("gone", "u-1")
	require.NoError(t, r.Insert(ctx, gone))
	require.NoError(t, r.SoftDelete(ctx, gone.ID, time.Now().UTC()))

	updated, err := r.ListUpdatedSince(ctx, since, 100)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	require.Equal(t, live.ID, updated[0].ID)

	deleted, err := r.ListDeletedSince(ctx, since, 50)
	require.NoError(t, err)
	require.Equal(t, []string{gone.ID}, deleted)
}

func TestAudit_AppendAndList(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	task := newTask("audited", "u-1")
	require.NoError(t, r.Insert(ctx, task))

	diff, err := json.Marshal(map[string]any{"title": "audited"})
	require.NoError(t, err)
	require.NoError(t, r.AppendAudit(ctx, &models.TaskAudit{
		TaskID: task.ID, At: time.Now().UTC(), By: "u-1",
		Action: models.AuditCreate, Diff: diff,
	}))

	diff2, err := json.Marshal(map[string]any{"title": "renamed", "version": 2})
	require.NoError(t, err)
	require.NoError(t, r.AppendAudit(ctx, &models.TaskAudit{
		TaskID: task.ID, At: time.Now().UTC().Add(time.Second), By: "u-2",
		Action: models.AuditUpdate, Diff: diff2,
	}))

	audits, err := r.ListAudits(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	require.Equal(t, models.AuditCreate, audits[0].Action)
	require.Equal(t, models.AuditUpdate, audits[1].Action)
	require.Equal(t, "u-2", audits[1].By)
	require.JSONEq(t, string(diff2), string(audits[1].Diff))
}

func TestReplaceAssignees(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	task := newTask("assignable", "u-1")
	task.Assignees = []string{"u-2", "u-3"}
	require.NoError(t, r.Insert(ctx, task))

	got, err := r.Get(ctx, task.ID, "u-1")
	require.NoError(t, err)
	require.Equal(t, []string{"u-2", "u-3"}, got.Assignees)

	require.NoError(t, r.ReplaceAssignees(ctx, task.ID, []string{"u-4"}))
	got, err = r.Get(ctx, task.ID, "u-1")
	require.NoError(t, err)
	require.Equal(t, []string{"u-4"}, got.Assignees)
}
