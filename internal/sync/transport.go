// Package sync is the synchronization engine: conflict detection,
// merge-free reconciliation, conflict resolution, and the orchestrator
// state machine that decides when each runs.
package sync

import (
	"context"
	"time"

	"github.com/nbarrett/notesync/internal/cloud"
	"github.com/nbarrett/notesync/internal/notes"
	"github.com/nbarrett/notesync/internal/store"
)

// Transport is the slice of the cloud client the engine needs. Every
// call is stateless and independently retryable; a failed call leaves
// local state untouched.
type Transport interface {
	Upload(ctx context.Context, n notes.LocalNote) (cloud.UploadResult, error)
	DownloadAll(ctx context.Context) ([]notes.RemoteNoteRecord, error)
	Delete(ctx context.Context, cloudID string) error
}

// foldUploadResult writes a successful upload's cloud identity back
// into the local record and marks it synced. This is the only way a
// note transitions to synced after an upload, so every upload path
// converges through it.
func foldUploadResult(st *store.Store, noteID string, result cloud.UploadResult) error {
	synced := notes.StatusSynced
	now := time.Now().UTC()

	_, err := st.Upsert(store.NoteUpdate{
		CloudID:        &result.CloudID,
		CloudUpdatedAt: &result.CloudUpdatedAt,
		ContentHash:    &result.ContentHash,
		SyncStatus:     &synced,
		LastSyncAt:     &now,
	}, noteID)

	return err
}
