// Package notes defines the domain types shared by the local store, the
// cloud transport, and the sync engine. Local and remote representations
// are distinct types joined by the (ID, CloudID) pair: the local store's
// primary key is ID, the remote store's is CloudID.
package notes

import "time"

// SyncStatus describes where a note stands relative to its cloud copy.
type SyncStatus string

const (
	// StatusSynced means the note's content hash matches the cloud copy
	// as of the last successful sync cycle.
	StatusSynced SyncStatus = "synced"

	// StatusLocalOnly means the note has never been uploaded, or its
	// last upload has not been folded back yet.
	StatusLocalOnly SyncStatus = "local_only"

	// StatusConflict means the note diverged from its cloud copy and is
	// waiting for an explicit resolution.
	StatusConflict SyncStatus = "conflict"
)

// LocalNote is the canonical local record. A zero SyncStatus is treated
// as StatusLocalOnly (never synced).
type LocalNote struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// CloudID is empty until the first successful upload.
	CloudID        string     `json:"cloudId,omitempty"`
	CloudUpdatedAt time.Time  `json:"cloudUpdatedAt,omitzero"`
	ContentHash    string     `json:"contentHash,omitempty"`
	SyncStatus     SyncStatus `json:"syncStatus,omitempty"`
	LastSyncAt     time.Time  `json:"lastSyncAt,omitzero"`
}

// Status returns the effective sync status, mapping the unset zero value
// to StatusLocalOnly.
func (n LocalNote) Status() SyncStatus {
	if n.SyncStatus == "" {
		return StatusLocalOnly
	}
	return n.SyncStatus
}

// Dirty reports whether the note has changed since its last successful
// sync: the stored hash is missing or no longer matches the current
// title and content.
func (n LocalNote) Dirty() bool {
	return n.ContentHash == "" || n.ContentHash != Fingerprint(n.Title, n.Content)
}

// RemoteNoteRecord is a note as the cloud store returns it. LocalID is
// the client-side ID the record was uploaded under, echoed back by the
// server so the two sides can be joined without guessing.
type RemoteNoteRecord struct {
	CloudID     string    `json:"id"`
	LocalID     string    `json:"localId"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHash string    `json:"contentHash"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Hash returns the record's carried content hash, computing it from the
// title and content when the server did not pass one through.
func (r RemoteNoteRecord) Hash() string {
	if r.ContentHash != "" {
		return r.ContentHash
	}
	return Fingerprint(r.Title, r.Content)
}

// ConflictType identifies which fields diverged between the two copies.
type ConflictType string

const (
	ConflictTitle   ConflictType = "title"
	ConflictContent ConflictType = "content"
	ConflictBoth    ConflictType = "both"
)

// SyncConflict pairs a local note with its diverged cloud counterpart.
// Ephemeral: created by the detector, consumed by the resolver, never
// persisted.
type SyncConflict struct {
	NoteID string
	Local  LocalNote
	Cloud  RemoteNoteRecord
	Type   ConflictType
}
