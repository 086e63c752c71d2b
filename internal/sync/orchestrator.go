package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbarrett/notesync/internal/notes"
	"github.com/nbarrett/notesync/internal/store"
)

// State is the orchestrator's position in the sync lifecycle. Whether a
// sync can start now is a total function of this value, not a flag
// check.
type State string

const (
	// StateIdle means no sync is running and none is blocked.
	StateIdle State = "idle"

	// StateFullSync means a full download-and-reconcile pass is running.
	StateFullSync State = "full_sync"

	// StateConflictPending means detection found conflicts and automatic
	// reconciliation is halted until every one is resolved.
	StateConflictPending State = "conflict_pending"

	// StateIncrementalSync means a periodic dirty-note upload pass is
	// running.
	StateIncrementalSync State = "incremental_sync"
)

// ErrSyncInProgress is returned when a sync is requested while the
// machine is not idle. The request is dropped, not queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrConflictPending is returned when automatic sync is requested while
// conflicts await resolution.
var ErrConflictPending = errors.New("conflicts pending resolution")

// DefaultSyncInterval is the fallback period between incremental passes.
const DefaultSyncInterval = 60 * time.Second

// Orchestrator drives the engine: a first-ever full sync per user, a
// periodic incremental pass, and the conflict-pending halt in between.
// One orchestrator serves one authenticated user; the per-user sync
// cursor lives in the store so switching accounts starts from that
// account's own cursor.
type Orchestrator struct {
	store      *store.Store
	transport  Transport
	reconciler *Reconciler
	resolver   *Resolver
	logger     *slog.Logger
	userID     string

	mu      sync.Mutex
	state   State
	pending []notes.SyncConflict
}

// NewOrchestrator creates an orchestrator for one user.
func NewOrchestrator(st *store.Store, transport Transport, userID string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      st,
		transport:  transport,
		reconciler: NewReconciler(st, transport, logger),
		resolver:   NewResolver(st, transport, logger),
		logger:     logger,
		userID:     userID,
		state:      StateIdle,
	}
}

// State returns the current machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// CanStart reports whether a sync may start now. Total over the state:
// only idle admits a new sync.
func (o *Orchestrator) CanStart() bool {
	return o.State() == StateIdle
}

// Conflicts returns the conflicts awaiting resolution.
func (o *Orchestrator) Conflicts() []notes.SyncConflict {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]notes.SyncConflict, len(o.pending))
	copy(out, o.pending)

	return out
}

// Sync runs one sync pass: the first pass for a user is a full sync,
// every later pass is incremental. A request while the machine is not
// idle is dropped with ErrSyncInProgress (or ErrConflictPending when
// resolution is what it is waiting for). Transport errors leave local
// state untouched; the caller retries on its next tick.
func (o *Orchestrator) Sync(ctx context.Context) error {
	cursor, err := o.store.Cursor(o.userID)
	if err != nil {
		return err
	}

	full := !cursor.InitialSyncDone

	next := StateIncrementalSync
	if full {
		next = StateFullSync
	}

	o.mu.Lock()
	switch o.state {
	case StateIdle:
		o.state = next
	case StateConflictPending:
		o.mu.Unlock()
		return ErrConflictPending
	default:
		o.mu.Unlock()
		return ErrSyncInProgress
	}
	o.mu.Unlock()

	if full {
		return o.fullSync(ctx, cursor)
	}

	return o.incrementalSync(ctx, cursor)
}

// fullSync downloads the whole cloud set, detects conflicts, and either
// halts on them or reconciles and records the full sync as done.
func (o *Orchestrator) fullSync(ctx context.Context, cursor store.SyncCursor) error {
	o.logger.Info("full sync starting", slog.String("user_id", o.userID))

	remote, err := o.transport.DownloadAll(ctx)
	if err != nil {
		o.setState(StateIdle)
		return fmt.Errorf("downloading cloud notes: %w", err)
	}

	local, err := o.store.List()
	if err != nil {
		o.setState(StateIdle)
		return err
	}

	conflicts := Detect(local, remote)
	if len(conflicts) > 0 {
		if err := o.markConflicts(conflicts); err != nil {
			o.setState(StateIdle)
			return err
		}

		o.mu.Lock()
		o.pending = conflicts
		o.state = StateConflictPending
		o.mu.Unlock()

		o.logger.Warn("full sync halted on conflicts", slog.Int("conflicts", len(conflicts)))

		return nil
	}

	reconcileErr := o.reconciler.Reconcile(ctx, local, remote)
	if reconcileErr != nil {
		o.logger.Warn("reconciliation incomplete", slog.String("error", reconcileErr.Error()))
	}

	// Full sync is recorded as done even when individual uploads
	// failed: those notes stay local_only and the incremental pass
	// picks them up.
	cursor.InitialSyncDone = true
	cursor.LastSyncAt = time.Now().UTC()
	if err := o.store.SetCursor(o.userID, cursor); err != nil {
		o.setState(StateIdle)
		return err
	}

	o.setState(StateIdle)
	o.logger.Info("full sync complete", slog.String("user_id", o.userID))

	return reconcileErr
}

// incrementalSync uploads each note whose fingerprint changed since the
// last sync, which has never been uploaded, or which is not marked
// synced. Uploads are per-note with no batch conflict detection: last
// writer wins at this granularity.
func (o *Orchestrator) incrementalSync(ctx context.Context, cursor store.SyncCursor) error {
	defer o.setState(StateIdle)

	local, err := o.store.List()
	if err != nil {
		return err
	}

	var uploaded, failures int

	for _, ln := range local {
		if !ln.Dirty() && ln.CloudID != "" && ln.Status() == notes.StatusSynced {
			continue
		}

		result, err := o.transport.Upload(ctx, ln)
		if err != nil {
			failures++
			o.logger.Warn("incremental upload failed",
				slog.String("note_id", ln.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := foldUploadResult(o.store, ln.ID, result); err != nil {
			failures++
			o.logger.Warn("folding upload result",
				slog.String("note_id", ln.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		uploaded++
	}

	if uploaded > 0 || failures > 0 {
		o.logger.Info("incremental sync",
			slog.Int("uploaded", uploaded),
			slog.Int("failed", failures),
		)
	}

	cursor.LastSyncAt = time.Now().UTC()
	if err := o.store.SetCursor(o.userID, cursor); err != nil {
		return err
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d incremental uploads failed", failures, uploaded+failures)
	}

	return nil
}

// Resolve applies a resolution to one pending conflict. When the last
// conflict is resolved the machine returns to idle and automatic sync
// resumes.
func (o *Orchestrator) Resolve(ctx context.Context, noteID string, choice Resolution) (notes.LocalNote, error) {
	o.mu.Lock()
	idx := -1
	for i, c := range o.pending {
		if c.NoteID == noteID {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return notes.LocalNote{}, fmt.Errorf("no pending conflict for note %s", noteID)
	}
	conflict := o.pending[idx]
	o.mu.Unlock()

	resolved, err := o.resolver.Resolve(ctx, conflict, choice)
	if err != nil {
		return notes.LocalNote{}, err
	}

	// The lock was released across the resolver call, so the slice may
	// have shifted. Find the conflict again by note id before splicing.
	o.mu.Lock()
	for i, c := range o.pending {
		if c.NoteID == noteID {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			break
		}
	}
	if len(o.pending) == 0 && o.state == StateConflictPending {
		o.state = StateIdle
	}
	o.mu.Unlock()

	return resolved, nil
}

// DeleteNote removes a note on both sides: the cloud copy first when
// one exists, then the local record. An already-deleted cloud copy is
// not an error.
func (o *Orchestrator) DeleteNote(ctx context.Context, noteID string) error {
	ln, err := o.store.FindByID(noteID)
	if err != nil {
		return err
	}
	if ln == nil {
		return fmt.Errorf("note %s does not exist", noteID)
	}

	if ln.CloudID != "" {
		if err := o.transport.Delete(ctx, ln.CloudID); err != nil {
			return fmt.Errorf("deleting cloud copy: %w", err)
		}
	}

	return o.store.Delete(noteID)
}

// markConflicts flags the conflicted notes in the store so their status
// survives a restart while resolution is pending.
func (o *Orchestrator) markConflicts(conflicts []notes.SyncConflict) error {
	status := notes.StatusConflict
	for _, c := range conflicts {
		if _, err := o.store.Upsert(store.NoteUpdate{SyncStatus: &status}, c.NoteID); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}
