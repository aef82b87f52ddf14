// Package cli implements the fleetzen-agent command line: access token
// handling, draft editing and submission, queue inspection, manual sync and
// the long-running agent that keeps the queue draining and serves the
// offline gateway.
package cli
