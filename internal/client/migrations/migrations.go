// Package migrations embeds the SQLite schemas of the agent's two local
// databases. Each set is versioned by goose independently.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed drafts/*.sql
var draftsFS embed.FS

//go:embed outbox/*.sql
var outboxFS embed.FS

// Drafts holds the draft database schema: drafts, photo blobs, metadata.
var Drafts = mustSub(draftsFS, "drafts")

// Outbox holds the submission queue schema.
var Outbox = mustSub(outboxFS, "outbox")

func mustSub(fsys embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
