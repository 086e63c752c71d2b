package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbarrett/notesync/internal/notes"
	"github.com/nbarrett/notesync/internal/store"
)

// Resolution is the user's choice for a conflict.
type Resolution string

const (
	// ChooseLocal keeps the local copy and overwrites the cloud.
	ChooseLocal Resolution = "local"

	// ChooseCloud keeps the cloud copy and overwrites local.
	ChooseCloud Resolution = "cloud"

	// ChooseMerge keeps both, concatenated into a new document that
	// becomes its own sync target. The original pair is superseded,
	// not deleted.
	ChooseMerge Resolution = "merge"
)

// mergeTitleSuffix marks a note as the product of a merge resolution.
const mergeTitleSuffix = " (merged)"

// Resolver applies a chosen resolution to a detected conflict. Every
// branch finishes by pushing the authoritative result to the cloud so
// both sides converge.
type Resolver struct {
	store     *store.Store
	transport Transport
	logger    *slog.Logger
}

// NewResolver creates a resolver with the given dependencies.
func NewResolver(st *store.Store, transport Transport, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:     st,
		transport: transport,
		logger:    logger,
	}
}

// Resolve applies the chosen resolution and returns the note that is
// now the canonical sync target: the original note for local and cloud
// choices, the newly created merge document for merge. After any
// branch, re-running Detect on the affected pair finds no conflict.
func (r *Resolver) Resolve(ctx context.Context, c notes.SyncConflict, choice Resolution) (notes.LocalNote, error) {
	switch choice {
	case ChooseLocal:
		return r.keepLocal(ctx, c)
	case ChooseCloud:
		return r.keepCloud(ctx, c)
	case ChooseMerge:
		return r.mergeBoth(ctx, c)
	default:
		return notes.LocalNote{}, fmt.Errorf("unknown resolution %q", choice)
	}
}

// keepLocal uploads the local copy over the cloud one and folds the
// server-returned identity back.
func (r *Resolver) keepLocal(ctx context.Context, c notes.SyncConflict) (notes.LocalNote, error) {
	result, err := r.transport.Upload(ctx, c.Local)
	if err != nil {
		return notes.LocalNote{}, fmt.Errorf("uploading local copy: %w", err)
	}

	if err := foldUploadResult(r.store, c.Local.ID, result); err != nil {
		return notes.LocalNote{}, err
	}

	resolved, err := r.store.FindByID(c.Local.ID)
	if err != nil {
		return notes.LocalNote{}, err
	}

	r.logger.Info("conflict resolved: local wins", slog.String("note_id", c.NoteID))

	return *resolved, nil
}

// keepCloud overwrites the local note's content-bearing fields from the
// cloud copy. When the recomputed hash differs from what the cloud
// carries, the note is re-uploaded so both sides are byte-identical.
func (r *Resolver) keepCloud(ctx context.Context, c notes.SyncConflict) (notes.LocalNote, error) {
	synced := notes.StatusSynced
	hash := notes.Fingerprint(c.Cloud.Title, c.Cloud.Content)
	now := time.Now().UTC()

	updated, err := r.store.Upsert(store.NoteUpdate{
		Title:          &c.Cloud.Title,
		Content:        &c.Cloud.Content,
		CloudID:        &c.Cloud.CloudID,
		CloudUpdatedAt: &c.Cloud.UpdatedAt,
		ContentHash:    &hash,
		SyncStatus:     &synced,
		LastSyncAt:     &now,
	}, c.Local.ID)
	if err != nil {
		return notes.LocalNote{}, fmt.Errorf("overwriting local copy: %w", err)
	}

	if c.Cloud.ContentHash != "" && c.Cloud.ContentHash != hash {
		result, err := r.transport.Upload(ctx, updated)
		if err != nil {
			return notes.LocalNote{}, fmt.Errorf("re-uploading normalized copy: %w", err)
		}
		if err := foldUploadResult(r.store, updated.ID, result); err != nil {
			return notes.LocalNote{}, err
		}
	}

	resolved, err := r.store.FindByID(c.Local.ID)
	if err != nil {
		return notes.LocalNote{}, err
	}

	r.logger.Info("conflict resolved: cloud wins", slog.String("note_id", c.NoteID))

	return *resolved, nil
}

// mergeBoth synthesizes a new document holding both versions under
// labeled headings, uploads it so it becomes its own canonical sync
// target, and settles the original pair on the cloud version. The local
// edits survive inside the merge document.
func (r *Resolver) mergeBoth(ctx context.Context, c notes.SyncConflict) (notes.LocalNote, error) {
	localOnly := notes.StatusLocalOnly
	title := c.Local.Title + mergeTitleSuffix
	content := mergeContent(c)

	merged, err := r.store.Upsert(store.NoteUpdate{
		Title:      &title,
		Content:    &content,
		SyncStatus: &localOnly,
	}, "")
	if err != nil {
		return notes.LocalNote{}, fmt.Errorf("creating merge document: %w", err)
	}

	result, err := r.transport.Upload(ctx, merged)
	if err != nil {
		// The merge document exists locally and will be picked up by
		// the next incremental pass.
		return notes.LocalNote{}, fmt.Errorf("uploading merge document: %w", err)
	}

	if err := foldUploadResult(r.store, merged.ID, result); err != nil {
		return notes.LocalNote{}, err
	}

	// Settle the superseded pair: the original note takes the cloud
	// version so the two sides agree and detection stays quiet.
	if _, err := r.keepCloud(ctx, c); err != nil {
		return notes.LocalNote{}, err
	}

	resolved, err := r.store.FindByID(merged.ID)
	if err != nil {
		return notes.LocalNote{}, err
	}

	r.logger.Info("conflict resolved: merged as new document",
		slog.String("note_id", c.NoteID),
		slog.String("merge_id", merged.ID),
	)

	return *resolved, nil
}

// mergeContent concatenates both versions under labeled headings, local
// first, each stamped with its own update time.
func mergeContent(c notes.SyncConflict) string {
	return fmt.Sprintf(
		"## Local version (edited %s)\n\n%s\n\n## Cloud version (edited %s)\n\n%s\n",
		c.Local.UpdatedAt.Format(time.RFC3339),
		c.Local.Content,
		c.Cloud.UpdatedAt.Format(time.RFC3339),
		c.Cloud.Content,
	)
}
