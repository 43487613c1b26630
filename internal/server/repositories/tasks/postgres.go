// Package tasks provides the SQL-backed repository for tasks, stars, and
// the append-only audit log.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/dbx"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

// sortColumns whitelists user-supplied sort fields.
var sortColumns = map[string]string{
	"createdAt": "t.created_at",
	"updatedAt": "t.updated_at",
	"title":     "t.title",
	"createdBy": "t.created_by",
}

const taskColumns = `t.id, t.title, t.description, t.created_by, t.created_at, t.updated_by, t.updated_at, t.version, t.is_deleted`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, t *models.Task) error {
	query := `
		INSERT INTO tasks (id, title, description, created_by, created_at, updated_by, updated_at, version, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var updatedBy any
	if t.UpdatedBy != "" {
		updatedBy = t.UpdatedBy
	}
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, t.CreatedBy, t.CreatedAt, updatedBy, t.UpdatedAt, t.Version, t.IsDeleted); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.ReplaceAssignees(ctx, t.ID, t.Assignees)
}

func (r *PostgresRepository) Get(ctx context.Context, id, viewerID string) (*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `,
		       EXISTS(SELECT 1 FROM task_stars s WHERE s.task_id = t.id AND s.user_id = $2) AS is_starred
		FROM tasks t
		WHERE t.id = $1 AND t.is_deleted = FALSE
	`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id, viewerID))
	if err != nil {
		return nil, err
	}
	assignees, err := r.loadAssignees(ctx, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Assignees = assignees[t.ID]
	if t.Assignees == nil {
		t.Assignees = []string{}
	}
	return t, nil
}

// Update applies the already-merged row state iff the stored version still
// equals expectedVersion; the row's version becomes expectedVersion+1.
// Zero rows affected means a concurrent writer won the race.
func (r *PostgresRepository) Update(ctx context.Context, t *models.Task, expectedVersion int64) error {
	query := `
		UPDATE tasks
		SET title = $1, description = $2, updated_by = $3, updated_at = $4, version = $5
		WHERE id = $6 AND is_deleted = FALSE AND version = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		t.Title, t.Description, t.UpdatedBy, t.UpdatedAt, expectedVersion+1, t.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrVersionConflict
	}
	t.Version = expectedVersion + 1
	return nil
}

func (r *PostgresRepository) ReplaceAssignees(ctx context.Context, taskID string, assignees []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, userID := range assignees {
		query := `
			INSERT INTO task_assignees (task_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (task_id, user_id) DO NOTHING
		`
		if _, err := r.db.ExecContext(ctx, query, taskID, userID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

// SoftDelete hides an active task. The version is left unchanged; updated_at
// moves so incremental sync can discover the deletion.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE tasks SET is_deleted = TRUE, updated_at = $1
		WHERE id = $2 AND is_deleted = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Restore(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE tasks SET is_deleted = FALSE, updated_at = $1
		WHERE id = $2 AND is_deleted = TRUE
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Star(ctx context.Context, star *models.TaskStar) (bool, error) {
	if star.ID == "" {
		star.ID = uuid.NewString()
	}
	query := `
		INSERT INTO task_stars (id, task_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id, user_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, star.ID, star.TaskID, star.UserID, star.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) Unstar(ctx context.Context, taskID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM task_stars WHERE task_id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) List(ctx context.Context, q models.TaskListQuery, viewerID string) ([]models.Task, int, error) {
	// The count and page queries bind different parameter sets: the page
	// query always binds the viewer for the is_starred projection, the count
	// query only when a context filter references it. Each query gets its own
	// args so the bound count matches its placeholders exactly.
	filterWhere := func(viewerParam int, args *[]any) string {
		where := []string{"t.is_deleted = FALSE"}
		switch q.Context {
		case models.ContextMine:
			where = append(where, fmt.Sprintf(
				"(t.created_by = $%d OR EXISTS(SELECT 1 FROM task_assignees a WHERE a.task_id = t.id AND a.user_id = $%d))",
				viewerParam, viewerParam))
		case models.ContextStarred:
			where = append(where, fmt.Sprintf(
				"EXISTS(SELECT 1 FROM task_stars s WHERE s.task_id = t.id AND s.user_id = $%d)", viewerParam))
		}
		if q.Search != "" {
			*args = append(*args, "%"+strings.ToLower(q.Search)+"%")
			n := len(*args)
			where = append(where,
				fmt.Sprintf("(LOWER(t.title) LIKE $%d OR LOWER(t.description) LIKE $%d)", n, n))
		}
		return strings.Join(where, " AND ")
	}

	var countArgs []any
	countViewerParam := 0
	if q.Context == models.ContextMine || q.Context == models.ContextStarred {
		countArgs = append(countArgs, viewerID)
		countViewerParam = 1
	}
	countWhere := filterWhere(countViewerParam, &countArgs)

	var total int
	countQuery := `SELECT COUNT(*) FROM tasks t WHERE ` + countWhere
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	args := []any{viewerID}
	whereClause := filterWhere(1, &args)

	sortCol, ok := sortColumns[q.SortBy]
	if !ok {
		sortCol = "t.created_at"
	}
	direction := "ASC"
	if strings.EqualFold(q.SortOrder, "desc") {
		direction = "DESC"
	}

	query := `
		SELECT ` + taskColumns + `,
		       EXISTS(SELECT 1 FROM task_stars s WHERE s.task_id = t.id AND s.user_id = $1) AS is_starred
		FROM tasks t
		WHERE ` + whereClause + `
		ORDER BY ` + sortCol + ` ` + direction + `, t.id ASC`

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, (q.Page-1)*q.Limit)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	items, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachAssignees(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresRepository) ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.Task, error) {
	query := `
		SELECT ` + taskColumns + `, FALSE AS is_starred
		FROM tasks t
		WHERE t.is_deleted = FALSE AND t.updated_at > $1
		ORDER BY t.updated_at ASC, t.id ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	items, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachAssignees(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PostgresRepository) ListDeletedSince(ctx context.Context, since time.Time, limit int) ([]string, error) {
	query := `
		SELECT t.id
		FROM tasks t
		WHERE t.is_deleted = TRUE AND t.updated_at > $1
		ORDER BY t.updated_at ASC, t.id ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) AppendAudit(ctx context.Context, a *models.TaskAudit) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := `
		INSERT INTO task_audits (id, task_id, at, by_user, action, diff, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var metadata any
	if len(a.Metadata) > 0 {
		metadata = string(a.Metadata)
	}
	if _, err := r.db.ExecContext(ctx, query,
		a.ID, a.TaskID, a.At, a.By, a.Action, string(a.Diff), metadata); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListAudits(ctx context.Context, taskID string) ([]models.TaskAudit, error) {
	query := `
		SELECT id, task_id, at, by_user, action, diff, metadata
		FROM task_audits
		WHERE task_id = $1
		ORDER BY at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var audits []models.TaskAudit
	for rows.Next() {
		var a models.TaskAudit
		var diff string
		var metadata sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &a.At, &a.By, &a.Action, &diff, &metadata); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		a.Diff = []byte(diff)
		if metadata.Valid {
			a.Metadata = []byte(metadata.String)
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return audits, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var updatedBy sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.CreatedBy, &t.CreatedAt,
		&updatedBy, &t.UpdatedAt, &t.Version, &t.IsDeleted, &t.IsStarred)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.UpdatedBy = updatedBy.String
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	items := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) attachAssignees(ctx context.Context, items []models.Task) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	byTask, err := r.loadAssignees(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].Assignees = byTask[items[i].ID]
		if items[i].Assignees == nil {
			items[i].Assignees = []string{}
		}
	}
	return nil
}

func (r *PostgresRepository) loadAssignees(ctx context.Context, taskIDs []string) (map[string][]string, error) {
	placeholders := make([]string, len(taskIDs))
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `
		SELECT task_id, user_id FROM task_assignees
		WHERE task_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY user_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	byTask := make(map[string][]string, len(taskIDs))
	for rows.Next() {
		var taskID, userID string
		if err := rows.Scan(&taskID, &userID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		byTask[taskID] = append(byTask[taskID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return byTask, nil
}
