package services

import (
	"reflect"
	"sync"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/client/models"
)

// DefaultDebounceDelay is the silence required before an auto-save.
const DefaultDebounceDelay = 2 * time.Second

// Debouncer collapses bursts of form changes into one save of the latest
// snapshot. Snapshots equal to the last persisted state are skipped; the
// first baseline is the state the form was opened with.
type Debouncer struct {
	delay time.Duration
	save  func(models.Draft)

	mu      sync.Mutex
	timer   *time.Timer
	gen     int
	pending *models.Draft
	last    models.Draft
	seq     uint64

	// saving is held across a save so Flush waits for one already running.
	// It is never acquired while mu is held.
	saving   sync.Mutex
	savedSeq uint64
}

func NewDebouncer(baseline models.Draft, delay time.Duration, save func(models.Draft)) *Debouncer {
	return &Debouncer{delay: delay, save: save, last: snapshot(baseline)}
}

// Change records a new form snapshot and restarts the silence timer.
func (b *Debouncer) Change(d models.Draft) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopLocked()
	if sameState(d, b.last) {
		b.pending = nil
		return
	}

	s := snapshot(d)
	b.pending = &s
	gen := b.gen
	b.timer = time.AfterFunc(b.delay, func() { b.fire(gen) })
}

// Flush saves the pending snapshot now, if any. It returns after any save
// already in progress has finished.
func (b *Debouncer) Flush() {
	b.mu.Lock()
	b.stopLocked()
	d, seq := b.takeLocked()
	b.mu.Unlock()

	b.saveLatest(d, seq)
}

// Stop drops the pending snapshot without saving it.
func (b *Debouncer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	b.pending = nil
}

func (b *Debouncer) fire(gen int) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	d, seq := b.takeLocked()
	b.mu.Unlock()

	b.saveLatest(d, seq)
}

// saveLatest persists d unless a newer snapshot was saved while it waited.
func (b *Debouncer) saveLatest(d *models.Draft, seq uint64) {
	b.saving.Lock()
	defer b.saving.Unlock()

	if d == nil || seq <= b.savedSeq {
		return
	}
	b.savedSeq = seq
	b.save(*d)
}

func (b *Debouncer) stopLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

func (b *Debouncer) takeLocked() (*models.Draft, uint64) {
	d := b.pending
	b.pending = nil
	if d != nil {
		b.last = *d
		b.seq++
	}
	return d, b.seq
}

func snapshot(d models.Draft) models.Draft {
	fd := make(models.FormData, len(d.FormData))
	for k, v := range d.FormData {
		fd[k] = v
	}
	d.FormData = fd
	return d
}

func sameState(a, b models.Draft) bool {
	if a.TypePrestation != b.TypePrestation || a.CurrentStep != b.CurrentStep {
		return false
	}
	if len(a.FormData) == 0 && len(b.FormData) == 0 {
		return true
	}
	return reflect.DeepEqual(a.FormData, b.FormData)
}
