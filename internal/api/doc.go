// Package api is the JSON contract between the field agent and the sync
// server: intervention payloads, batch reconciliation envelopes and photo
// records, plus the validator both sides run on payloads.
package api
