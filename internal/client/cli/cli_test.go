package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/config"
	"github.com/dmitrijs2005/fleetzen/internal/client/gateway"
	"github.com/dmitrijs2005/fleetzen/internal/client/migrations"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/client/services"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

const (
	testClientID  = "6f1c2a0e-8a38-4f55-9a39-3f0a4c5e9b11"
	testVehicleID = "0b7d6c1e-2f4a-4e0b-9b8e-5d2c1a9f7e22"
	testTypeID    = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c33"
)

func init() {
	color.NoColor = true
}

type fakeAPI struct {
	mu      sync.Mutex
	pingErr error
	whoAmI  string
	synced  []string
	records map[string]*api.Intervention
}

func (f *fakeAPI) Ping(context.Context) error { return f.pingErr }

func (f *fakeAPI) WhoAmI(context.Context) (string, error) {
	if f.pingErr != nil {
		return "", client.ErrUnavailable
	}
	return f.whoAmI, nil
}

func (f *fakeAPI) CreateIntervention(_ context.Context, p *api.InterventionPayload) (*api.Intervention, bool, error) {
	if f.pingErr != nil {
		return nil, false, client.ErrUnavailable
	}
	return &api.Intervention{ID: "srv-1", Number: "INT-2026-000001", InterventionPayload: *p}, true, nil
}

func (f *fakeAPI) SyncBatch(_ context.Context, items []api.InterventionPayload) (*api.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &api.BatchResponse{Success: true}
	for _, it := range items {
		f.synced = append(f.synced, it.LocalID)
		resp.Data.Success = append(resp.Data.Success, api.BatchSuccess{
			LocalID:      it.LocalID,
			Intervention: api.Intervention{ID: "srv-" + it.LocalID, InterventionPayload: it},
		})
	}
	return resp, nil
}

func (f *fakeAPI) UploadPhotos(_ context.Context, id, kind string, files []models.File) ([]api.Photo, error) {
	return make([]api.Photo, len(files)), nil
}

func (f *fakeAPI) GetIntervention(_ context.Context, localID string) (*api.Intervention, error) {
	if rec, ok := f.records[localID]; ok {
		return rec, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeAPI) syncedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synced...)
}

func newTestApp(t *testing.T, fake *fakeAPI) *App {
	t.Helper()
	ctx := context.Background()

	drafts, err := client.InitDatabase(ctx, ":memory:", migrations.Drafts)
	require.NoError(t, err)
	outbox, err := client.InitDatabase(ctx, ":memory:", migrations.Outbox)
	require.NoError(t, err)
	dbs := &client.Databases{Drafts: drafts, Outbox: outbox}
	t.Cleanup(func() { _ = dbs.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.DebounceDelay = 10 * time.Millisecond
	cfg.OnlineCheckInterval = 20 * time.Millisecond
	cfg.DrainInterval = time.Hour

	a, err := newApp(cfg, logging.Nop(), dbs, fake)
	require.NoError(t, err)
	return a
}

func execute(t *testing.T, a *App, stdin string, args ...string) (string, error) {
	t.Helper()
	s := &session{open: func(*cobra.Command) (*App, error) { return a, nil }}
	root := newRootCommand(s)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), 0, 0, 0, 13, 'I', 'H', 'D', 'R')

func newWashDraft(t *testing.T, a *App, id string) {
	t.Helper()
	_, err := execute(t, a, "", "draft", "new", "wash", "--id", id)
	require.NoError(t, err)
	_, err = execute(t, a, "", "draft", "set", id,
		"clientId="+testClientID, "vehicleId="+testVehicleID, "typeId="+testTypeID, "washType=full")
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	a := newTestApp(t, &fakeAPI{whoAmI: "agent-7"})

	out, err := execute(t, a, "tok\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as agent-7")

	tok, err := a.Auth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	_, err = execute(t, a, "", "logout")
	require.NoError(t, err)
	tok, err = a.Auth.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestLogin_OfflineStoresUnverified(t *testing.T) {
	a := newTestApp(t, &fakeAPI{pingErr: client.ErrUnavailable})

	out, err := execute(t, a, "tok\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "could not be reached")
}

func TestDraft_OfflineSubmitQueues(t *testing.T) {
	a := newTestApp(t, &fakeAPI{pingErr: client.ErrUnavailable})
	newWashDraft(t, a, "d1")

	photo := writeFile(t, "pump.png", pngBytes)
	out, err := execute(t, a, "", "draft", "photo", "d1", "before", photo)
	require.NoError(t, err)
	assert.Contains(t, out, "photosBefore: 1 photo")

	out, err = execute(t, a, "", "draft", "show", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "washType = full")
	assert.Contains(t, out, "photosBefore: 1 photo")
	assert.Contains(t, out, "Ready to submit")

	out, err = execute(t, a, "", "draft", "submit", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued as")
	assert.Contains(t, out, "1 submission waiting to sync")

	out, err = execute(t, a, "", "queue", "count")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = execute(t, a, "", "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "1 photo")

	out, err = execute(t, a, "", "draft", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No drafts")
}

func TestDraft_OnlineSubmitSends(t *testing.T) {
	a := newTestApp(t, &fakeAPI{})
	newWashDraft(t, a, "d1")

	out, err := execute(t, a, "", "draft", "submit", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent as INT-2026-000001")

	n, err := a.Queue.GetPendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDraft_NotReady(t *testing.T) {
	a := newTestApp(t, &fakeAPI{})
	_, err := execute(t, a, "", "draft", "new", "fuel-delivery", "--id", "d1")
	require.NoError(t, err)

	out, err := execute(t, a, "", "draft", "show", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "Not ready")

	_, err = execute(t, a, "", "draft", "submit", "d1")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestDraft_NewPrefillsLastContext(t *testing.T) {
	a := newTestApp(t, &fakeAPI{})
	ctx := context.Background()
	require.NoError(t, a.LastContext.Remember(ctx, services.LastContext{ClientID: testClientID, VehicleID: testVehicleID}))

	out, err := execute(t, a, "", "draft", "new", "tank_refill")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	d, _, err := a.Drafts.Resume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PrestationTankRefill, d.TypePrestation)
	assert.Equal(t, testClientID, d.FormData["clientId"])
	assert.Equal(t, testVehicleID, d.FormData["vehicleId"])
	assert.NotContains(t, d.FormData, "typeId")
}

func TestDraft_Errors(t *testing.T) {
	a := newTestApp(t, &fakeAPI{})
	_, err := execute(t, a, "", "draft", "new", "wash", "--id", "d1")
	require.NoError(t, err)

	_, err = execute(t, a, "", "draft", "new", "polish")
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = execute(t, a, "", "draft", "set", "d1", "novalue")
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = execute(t, a, "", "draft", "set", "d1", "photosBefore=x")
	require.ErrorIs(t, err, common.ErrValidation)

	text := writeFile(t, "notes.txt", []byte("hello"))
	_, err = execute(t, a, "", "draft", "photo", "d1", "before", text)
	require.ErrorIs(t, err, common.ErrUnsupportedMedia)

	_, err = execute(t, a, "", "draft", "photo", "d1", "during", text)
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = execute(t, a, "", "draft", "show", "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDraft_SetClearsAndSetsStep(t *testing.T) {
	a := newTestApp(t, &fakeAPI{})
	ctx := context.Background()
	newWashDraft(t, a, "d1")

	_, err := execute(t, a, "", "draft", "set", "d1", "washType=", "--step", "3")
	require.NoError(t, err)

	d, _, err := a.Drafts.Resume(ctx, "d1")
	require.NoError(t, err)
	assert.NotContains(t, d.FormData, "washType")
	assert.Equal(t, 3, d.CurrentStep)

	_, err = execute(t, a, "", "draft", "delete", "d1")
	require.NoError(t, err)
	_, _, err = a.Drafts.Resume(ctx, "d1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDraft_EditAutoSaves(t *testing.T) {
	a := newTestApp(t, &fakeAPI{})
	ctx := context.Background()
	_, err := execute(t, a, "", "draft", "new", "wash", "--id", "d1")
	require.NoError(t, err)

	out, err := execute(t, a, "title=Night wash\nbogus\nstep 2\ndone\n", "draft", "edit", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "expected field=value")

	d, _, err := a.Drafts.Resume(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Night wash", d.FormData["title"])
	assert.Equal(t, 2, d.CurrentStep)
}

func TestSync(t *testing.T) {
	fake := &fakeAPI{}
	a := newTestApp(t, fake)
	ctx := context.Background()

	out, err := execute(t, a, "", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to sync")

	_, err = a.Queue.QueueIntervention(ctx, "tmp-1", api.InterventionPayload{LocalID: "tmp-1"}, nil)
	require.NoError(t, err)

	out, err = execute(t, a, "", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "1 submission synced")
	assert.Equal(t, []string{"tmp-1"}, fake.syncedIDs())

	fake.pingErr = client.ErrUnavailable
	_, err = execute(t, a, "", "sync")
	require.ErrorIs(t, err, errOffline)
}

func TestQueue_RetryAndCleanup(t *testing.T) {
	a := newTestApp(t, &fakeAPI{})
	ctx := context.Background()

	seq, err := a.Queue.QueueIntervention(ctx, "tmp-1", api.InterventionPayload{LocalID: "tmp-1", Title: "Wash"}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Queue.UpdateInterventionStatus(ctx, seq, models.QueueStatusFailed, "server said no"))

	out, err := execute(t, a, "", "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "last error: server said no")

	out, err = execute(t, a, "", "queue", "retry")
	require.NoError(t, err)
	assert.Contains(t, out, "1 submission requeued")

	_, err = execute(t, a, "", "queue", "retry", "abc")
	require.ErrorIs(t, err, common.ErrValidation)

	out, err = execute(t, a, "", "queue", "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "0 submissions removed")
}

func TestStatus(t *testing.T) {
	synced := time.Now()
	a := newTestApp(t, &fakeAPI{records: map[string]*api.Intervention{
		"tmp-1": {
			ID: "srv-1", Number: "INT-2026-000042", Synced: true, SyncedAt: &synced,
			InterventionPayload: api.InterventionPayload{LocalID: "tmp-1", Title: "Wash"},
			Photos:              []api.Photo{{ID: "p1"}},
		},
	}})

	out, err := execute(t, a, "", "status", "tmp-1")
	require.NoError(t, err)
	assert.Contains(t, out, "INT-2026-000042")
	assert.Contains(t, out, "Photos:   1")

	_, err = execute(t, a, "", "status", "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGatewaySkipWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != gateway.MessagePath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":"v2"}`))
	}))
	defer srv.Close()

	a := newTestApp(t, &fakeAPI{})
	a.Config.GatewayAddr = strings.TrimPrefix(srv.URL, "http://")

	out, err := execute(t, a, "", "gateway", "skip-waiting")
	require.NoError(t, err)
	assert.Contains(t, out, "Active cache version: v2")
}

func TestRunAgentDrainsQueuedSubmissions(t *testing.T) {
	fake := &fakeAPI{}
	a := newTestApp(t, fake)

	_, err := a.Queue.QueueIntervention(context.Background(), "tmp-1", api.InterventionPayload{LocalID: "tmp-1"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runAgent(ctx, a, false) }()

	require.Eventually(t, func() bool { return len(fake.syncedIDs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunAgentStopsWhenGatewayCannotListen(t *testing.T) {
	a := newTestApp(t, &fakeAPI{})

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })
	a.Config.GatewayAddr = busy.Addr().String()

	done := make(chan error, 1)
	go func() { done <- runAgent(context.Background(), a, true) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runAgent did not return after the gateway failed to bind")
	}
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}

func TestReadSecret(t *testing.T) {
	oldRead, oldTerm := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = oldRead, oldTerm })

	readPassword = func(int) ([]byte, error) { return []byte(" s3cret \n"), nil }
	isTerminal = func(int) bool { return true }

	var out bytes.Buffer
	got, err := readSecret(&out, os.Stdin, "Access token: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Equal(t, "Access token: \n", out.String())

	readPassword = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	_, err = readSecret(&out, os.Stdin, "")
	require.Error(t, err)

	got, err = readSecret(&out, strings.NewReader("piped"), "")
	require.NoError(t, err)
	assert.Equal(t, "piped", got)
}
