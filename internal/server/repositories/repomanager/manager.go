// Package repomanager wires concrete repositories to database handles, so
// services can obtain repositories bound either to the shared *sql.DB or to
// an in-flight transaction.
package repomanager

import (
	"github.com/bashaMendi/ToDo-back/internal/dbx"
	"github.com/bashaMendi/ToDo-back/internal/server/repositories/tasks"
	"github.com/bashaMendi/ToDo-back/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to the given DBTX.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Tasks(db dbx.DBTX) tasks.Repository
}
