package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// taskID validates the path id; malformed ids are a client error, not a
// lookup miss.
func taskID(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if uuid.Validate(id) != nil {
		return "", fmt.Errorf("%w: malformed task id", common.ErrorValidation)
	}
	return id, nil
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, common.ErrorValidation)
		return
	}
	sess := sessionFrom(r.Context())
	task, err := s.tasks.Create(r.Context(), req.Title, req.Description, sess.User)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("ETag", taskETag(task))
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sess := sessionFrom(r.Context())
	task, err := s.tasks.Get(r.Context(), id, sess.User.ID)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("ETag", taskETag(task))
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	expected, ok := parseIfMatch(r.Header.Get("If-Match"))
	if !ok {
		s.writeError(r.Context(), w, fmt.Errorf("%w: malformed If-Match", common.ErrorValidation))
		return
	}

	var patch models.TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(r.Context(), w, common.ErrorValidation)
		return
	}

	sess := sessionFrom(r.Context())
	task, err := s.tasks.Update(r.Context(), id, patch, sess.User, expected)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("ETag", taskETag(task))
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sess := sessionFrom(r.Context())
	undoToken, err := s.tasks.Delete(r.Context(), id, sess.User)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"undoToken": undoToken})
}

func (s *Server) handleRestoreTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UndoToken string `json:"undoToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, common.ErrorValidation)
		return
	}
	sess := sessionFrom(r.Context())
	task, err := s.tasks.Restore(r.Context(), req.UndoToken, sess.User)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("ETag", taskETag(task))
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDuplicateTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sess := sessionFrom(r.Context())
	task, err := s.tasks.Duplicate(r.Context(), id, sess.User)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("ETag", taskETag(task))
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleAssignSelf(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sess := sessionFrom(r.Context())
	if err := s.tasks.AssignSelf(r.Context(), id, sess.User); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sess := sessionFrom(r.Context())
	if err := s.tasks.Star(r.Context(), id, sess.User); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnstar(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sess := sessionFrom(r.Context())
	if err := s.tasks.Unstar(r.Context(), id, sess.User); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseListQuery maps the wire query params onto a list query. sort uses
// "field:direction".
func parseListQuery(r *http.Request, ctx models.ListContext) models.TaskListQuery {
	q := models.TaskListQuery{
		Search:  r.URL.Query().Get("query"),
		Context: ctx,
	}
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if sort := r.URL.Query().Get("sort"); sort != "" {
		parts := strings.SplitN(sort, ":", 2)
		q.SortBy = parts[0]
		if len(parts) == 2 {
			q.SortOrder = parts[1]
		}
	}
	if c := r.URL.Query().Get("context"); c != "" && ctx == models.ContextAll {
		q.Context = models.ListContext(c)
	}
	return q
}

func (s *Server) listWith(w http.ResponseWriter, r *http.Request, ctx models.ListContext) {
	sess := sessionFrom(r.Context())
	page, err := s.tasks.List(r.Context(), parseListQuery(r, ctx), sess.User.ID)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	s.listWith(w, r, models.ContextAll)
}

func (s *Server) handleMyTasks(w http.ResponseWriter, r *http.Request) {
	s.listWith(w, r, models.ContextMine)
}

func (s *Server) handleStarred(w http.ResponseWriter, r *http.Request) {
	s.listWith(w, r, models.ContextStarred)
}

// handleExport streams the viewer's tasks. csv and excel share a text/csv
// representation, BOM-prefixed for spreadsheet compatibility.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	items, err := s.tasks.ExportMine(r.Context(), sess.User.ID)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "csv", "excel":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="tasks.csv"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("\xEF\xBB\xBF"))
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"id", "title", "description", "createdBy", "createdAt", "updatedAt", "assignees", "version"})
		for _, t := range items {
			_ = cw.Write([]string{
				t.ID, t.Title, t.Description, t.CreatedBy,
				t.CreatedAt.UTC().Format(time.RFC3339),
				t.UpdatedAt.UTC().Format(time.RFC3339),
				strings.Join(t.Assignees, ";"),
				strconv.FormatInt(t.Version, 10),
			})
		}
		cw.Flush()
	case "json":
		w.Header().Set("Content-Disposition", `attachment; filename="tasks.json"`)
		writeJSON(w, http.StatusOK, items)
	default:
		s.writeError(r.Context(), w, fmt.Errorf("%w: unsupported format %q", common.ErrorValidation, format))
	}
}

// handleSync serves the bounded incremental pull.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("since")
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.writeError(r.Context(), w, fmt.Errorf("%w: since must be RFC3339", common.ErrorValidation))
		return
	}

	sess := sessionFrom(r.Context())
	updated, deleted, err := s.tasks.Sync(r.Context(), since, sess.User.ID)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"updated":  updated,
		"deleted":  deleted,
		"syncedAt": time.Now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.limiter.Stats())
}

func (s *Server) handleRealtimeStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Stats())
}
