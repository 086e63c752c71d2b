package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbarrett/notesync/internal/notes"
	"github.com/nbarrett/notesync/internal/store"
)

// Reconciler folds the local and cloud note sets into a consistent
// local view. It runs only when Detect has found no conflicts, so the
// cloud copy is the source of truth wherever both sides hold a note.
type Reconciler struct {
	store     *store.Store
	transport Transport
	logger    *slog.Logger
}

// NewReconciler creates a reconciler with the given dependencies.
func NewReconciler(st *store.Store, transport Transport, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     st,
		transport: transport,
		logger:    logger,
	}
}

// Reconcile merges the two sets:
//   - cloud notes with no local counterpart are created locally as synced
//   - local notes with a cloud counterpart that are not marked synced are
//     overwritten from the cloud copy and marked synced
//   - local notes with no cloud counterpart are uploaded, and the
//     returned cloud identity is folded back
//
// Notes are paired by cloud id, falling back to the echoed local id for
// uploads whose result was never folded back. Cloud-side deletions are
// not propagated to local deletions by this pass.
func (r *Reconciler) Reconcile(ctx context.Context, local []notes.LocalNote, remote []notes.RemoteNoteRecord) error {
	localByCloudID := make(map[string]notes.LocalNote, len(local))
	localByID := make(map[string]notes.LocalNote, len(local))
	for _, ln := range local {
		if ln.CloudID != "" {
			localByCloudID[ln.CloudID] = ln
		}
		localByID[ln.ID] = ln
	}

	matchedCloudIDs := make(map[string]bool, len(remote))
	matchedLocalIDs := make(map[string]bool, len(remote))

	var failures int

	for _, rec := range remote {
		ln, ok := localByCloudID[rec.CloudID]
		if !ok && rec.LocalID != "" {
			// Upload landed but the identity was never folded back.
			ln, ok = localByID[rec.LocalID]
		}

		if !ok {
			if err := r.adoptCloudNote(rec); err != nil {
				failures++
				r.logger.Warn("reconcile: adopting cloud note",
					slog.String("cloud_id", rec.CloudID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		matchedCloudIDs[rec.CloudID] = true
		matchedLocalIDs[ln.ID] = true

		if ln.Status() == notes.StatusSynced && ln.CloudID != "" {
			continue
		}

		if err := r.overwriteFromCloud(ln, rec); err != nil {
			failures++
			r.logger.Warn("reconcile: overwriting from cloud",
				slog.String("note_id", ln.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, ln := range local {
		if matchedLocalIDs[ln.ID] {
			// Paired in the first loop, possibly via the echoed local
			// id when its CloudID was never folded back.
			continue
		}
		if ln.CloudID != "" && matchedCloudIDs[ln.CloudID] {
			continue
		}
		if ln.CloudID != "" {
			// Cloud copy is missing: deleted remotely or not yet
			// visible. Left alone here.
			continue
		}

		if err := r.uploadLocalOnly(ctx, ln); err != nil {
			failures++
			r.logger.Warn("reconcile: uploading local-only note",
				slog.String("note_id", ln.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d reconcile steps failed", failures)
	}

	return nil
}

// adoptCloudNote creates a local record for a note that exists only in
// the cloud, already marked synced.
func (r *Reconciler) adoptCloudNote(rec notes.RemoteNoteRecord) error {
	synced := notes.StatusSynced
	hash := rec.Hash()
	now := time.Now().UTC()

	_, err := r.store.Upsert(store.NoteUpdate{
		ID:             strPtr(rec.LocalID),
		Title:          &rec.Title,
		Content:        &rec.Content,
		CloudID:        &rec.CloudID,
		CloudUpdatedAt: &rec.UpdatedAt,
		ContentHash:    &hash,
		SyncStatus:     &synced,
		LastSyncAt:     &now,
		CreatedAt:      &rec.CreatedAt,
		UpdatedAt:      &rec.UpdatedAt,
	}, "")
	if err != nil {
		return err
	}

	r.logger.Debug("reconcile: adopted cloud note", slog.String("cloud_id", rec.CloudID))

	return nil
}

// overwriteFromCloud replaces a local note's content-bearing fields with
// the cloud copy and marks it synced.
func (r *Reconciler) overwriteFromCloud(ln notes.LocalNote, rec notes.RemoteNoteRecord) error {
	synced := notes.StatusSynced
	hash := rec.Hash()
	now := time.Now().UTC()

	_, err := r.store.Upsert(store.NoteUpdate{
		Title:          &rec.Title,
		Content:        &rec.Content,
		CloudID:        &rec.CloudID,
		CloudUpdatedAt: &rec.UpdatedAt,
		ContentHash:    &hash,
		SyncStatus:     &synced,
		LastSyncAt:     &now,
	}, ln.ID)
	if err != nil {
		return err
	}

	r.logger.Debug("reconcile: overwrote from cloud", slog.String("note_id", ln.ID))

	return nil
}

// uploadLocalOnly marks a never-uploaded note local_only, uploads it,
// and folds the returned cloud identity back on success. A failed
// upload leaves the note local_only for the next pass.
func (r *Reconciler) uploadLocalOnly(ctx context.Context, ln notes.LocalNote) error {
	localOnly := notes.StatusLocalOnly
	marked, err := r.store.Upsert(store.NoteUpdate{SyncStatus: &localOnly}, ln.ID)
	if err != nil {
		return err
	}

	result, err := r.transport.Upload(ctx, marked)
	if err != nil {
		return err
	}

	return foldUploadResult(r.store, marked.ID, result)
}

func strPtr(s string) *string { return &s }
