package cloud

import (
	"time"

	"github.com/nbarrett/notesync/internal/notes"
)

// remoteNote is a note as it appears on the wire. Timestamps are
// ISO-8601 strings on the wire, decoded by encoding/json directly.
type remoteNote struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UserID      string    `json:"userId"`
	ContentHash string    `json:"contentHash"`
	NoteMode    string    `json:"noteMode"`
	LocalID     string    `json:"localId"`
}

func (r remoteNote) toRecord() notes.RemoteNoteRecord {
	return notes.RemoteNoteRecord{
		CloudID:     r.ID,
		LocalID:     r.LocalID,
		UserID:      r.UserID,
		Title:       r.Title,
		Content:     r.Content,
		ContentHash: r.ContentHash,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// listNotesResponse is returned from GET /api/notes.
type listNotesResponse struct {
	Notes []remoteNote `json:"notes"`
}

// upsertNoteRequest is the payload for POST /api/notes. CloudNoteID is
// set for updates and omitted for creates. LocalID plus ContentHash let
// the server recognize a retried create and return the existing record
// instead of a duplicate.
type upsertNoteRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentHash string `json:"contentHash"`
	LocalID     string `json:"localId"`
	CloudNoteID string `json:"cloudNoteId,omitempty"`
	NoteMode    string `json:"noteMode"`
}

// UploadResult is what a successful upload hands back to the sync
// engine: the remote identity and hash to fold into the local record.
type UploadResult struct {
	CloudID        string
	CloudUpdatedAt time.Time
	ContentHash    string
}

// Batch operation types for PUT /api/notes/batch.
const (
	BatchOpUpload = "upload"
	BatchOpUpdate = "update"
	BatchOpDelete = "delete"
)

// BatchOperation is one entry in a batch request. Note is required for
// upload and update, CloudNoteID for update and delete.
type BatchOperation struct {
	Type        string           `json:"type"`
	Note        *notes.LocalNote `json:"note,omitempty"`
	CloudNoteID string           `json:"cloudNoteId,omitempty"`
}

// BatchResult is one entry in a batch response, mirroring the operation
// at the same index. CloudNote is set for upload/update results, Deleted
// for delete results.
type BatchResult struct {
	LocalID   string      `json:"localId"`
	CloudNote *remoteNote `json:"cloudNote,omitempty"`
	Deleted   bool        `json:"deleted,omitempty"`
}

// Record returns the result's cloud note as a RemoteNoteRecord, or nil
// for delete results.
func (r BatchResult) Record() *notes.RemoteNoteRecord {
	if r.CloudNote == nil {
		return nil
	}
	rec := r.CloudNote.toRecord()
	return &rec
}

type batchRequest struct {
	Operations []batchWireOp `json:"operations"`
}

// batchWireOp is the wire form of a BatchOperation: the local note is
// flattened into the same shape a single upsert sends.
type batchWireOp struct {
	Type        string             `json:"type"`
	Note        *upsertNoteRequest `json:"note,omitempty"`
	CloudNoteID string             `json:"cloudNoteId,omitempty"`
}

type batchResponse struct {
	Results []BatchResult `json:"results"`
}
