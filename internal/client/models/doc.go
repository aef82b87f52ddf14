// Package models defines the agent-side records: drafts and their photo
// blobs, queued submissions, and the typed prestation forms that turn a
// draft into an intervention payload.
package models
