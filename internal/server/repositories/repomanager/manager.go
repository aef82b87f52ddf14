package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/fleetzen/internal/dbx"
	"github.com/dmitrijs2005/fleetzen/internal/server/repositories/interventions"
	"github.com/dmitrijs2005/fleetzen/internal/server/repositories/photos"
)

// RepositoryManager vends repositories bound to a connection or transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Interventions(db dbx.DBTX) interventions.Repository
	Photos(db dbx.DBTX) photos.Repository
}
