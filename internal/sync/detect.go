package sync

import (
	"time"

	"github.com/nbarrett/notesync/internal/notes"
)

// conflictWindow is the maximum update-time gap still attributed to a
// single logical save observed with slightly different timestamps on
// each side. Diverging hashes within this window are not conflicts;
// beyond it they are.
const conflictWindow = 5000 * time.Millisecond

// Detect pairs local notes with the freshly downloaded cloud set by
// cloud id and returns the pairs that genuinely diverged.
//
// The test is two-part. Hash alone would flag every legitimate
// single-device save as a conflict, because the local copy is observed
// before its upload lands. Time alone would miss slow-but-real
// divergence. A pair is a conflict only when the hashes differ AND the
// update timestamps are more than conflictWindow apart.
//
// Local notes with no cloud counterpart are not conflicts; the
// reconciler handles those. Cloud-only notes are likewise skipped here.
func Detect(local []notes.LocalNote, remote []notes.RemoteNoteRecord) []notes.SyncConflict {
	byCloudID := make(map[string]notes.RemoteNoteRecord, len(remote))
	for _, r := range remote {
		byCloudID[r.CloudID] = r
	}

	var conflicts []notes.SyncConflict

	for _, ln := range local {
		if ln.CloudID == "" {
			continue
		}

		r, ok := byCloudID[ln.CloudID]
		if !ok {
			continue
		}

		localHash := notes.Fingerprint(ln.Title, ln.Content)
		if localHash == r.Hash() {
			// Both sides already agree, regardless of timestamps.
			continue
		}

		gap := ln.UpdatedAt.Sub(r.UpdatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= conflictWindow {
			continue
		}

		conflicts = append(conflicts, notes.SyncConflict{
			NoteID: ln.ID,
			Local:  ln,
			Cloud:  r,
			Type:   classify(ln, r),
		})
	}

	return conflicts
}

func classify(ln notes.LocalNote, r notes.RemoteNoteRecord) notes.ConflictType {
	titleDiffers := ln.Title != r.Title
	contentDiffers := ln.Content != r.Content

	switch {
	case titleDiffers && contentDiffers:
		return notes.ConflictBoth
	case titleDiffers:
		return notes.ConflictTitle
	default:
		return notes.ConflictContent
	}
}
