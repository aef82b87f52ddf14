// Package client contains the agent's transport and local persistence
// bootstrap.
//
// # Overview
//
//  1. A transport-agnostic API contract (see the Client interface) for the
//     sync server: Ping, WhoAmI, CreateIntervention, SyncBatch, UploadPhotos and
//     GetIntervention.
//  2. An HTTP/JSON implementation (see HTTPClient) that injects the agent
//     access token and maps transport failures and status codes to sentinel
//     errors.
//  3. Local database bootstrap (InitDatabase, RunMigrations, OpenDatabases)
//     wiring SQLite files and applying embedded goose migrations.
//
// # Error Handling
//
// Callers match conditions with errors.Is: ErrUnavailable (no answer, or a
// transient server failure), ErrUnauthorized (missing or rejected token),
// ErrRejected (the server refused the request; retrying will not help) and
// common.ErrNotFound.
package client
