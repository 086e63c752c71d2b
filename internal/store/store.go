// Package store is the durable local note collection. Notes and per-user
// sync bookkeeping live in a single bbolt database, so every write is
// immediately durable and immediately visible to subsequent reads.
package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/nbarrett/notesync/internal/notes"
)

const (
	// storeDirPerm is the permission mode for the data directory (~/.notesync/).
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt database lock.
	storeOpenTimeout = 5 * time.Second
)

var (
	notesBucket = []byte("notes")
	syncBucket  = []byte("sync")
)

// SyncCursor is the per-user sync bookkeeping: when the last successful
// sync finished and whether the first full sync has ever completed.
// Keyed by user id so switching accounts on the same device never reuses
// another account's cursor.
type SyncCursor struct {
	LastSyncAt      time.Time `json:"lastSyncAt,omitzero"`
	InitialSyncDone bool      `json:"initialSyncDone"`
}

// NoteUpdate carries the fields an upsert should merge into a note.
// Nil fields are left untouched, so a caller can update content without
// knowing or clobbering the sync metadata and vice versa.
type NoteUpdate struct {
	// ID is honored only when creating: the sync engine adopts cloud
	// notes under the local id they were originally uploaded with. It
	// is ignored on update, an id is never reassigned.
	ID             *string
	Title          *string
	Content        *string
	CloudID        *string
	CloudUpdatedAt *time.Time
	ContentHash    *string
	SyncStatus     *notes.SyncStatus
	LastSyncAt     *time.Time
	CreatedAt      *time.Time
	UpdatedAt      *time.Time
}

// Store wraps a bbolt database holding the note collection and the
// per-user sync cursors.
type Store struct {
	db *bolt.DB
}

// Load opens the store at ~/.notesync/notes.db, creating it if it does
// not exist.
func Load() (*Store, error) {
	return LoadAt(dbPath())
}

// LoadAt opens a store at the given path, creating it if it does not
// exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening note db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(notesBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(syncBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing note db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns all notes sorted by UpdatedAt descending. Callers may
// rely on list order as "most recently touched first".
func (s *Store) List() ([]notes.LocalNote, error) {
	var all []notes.LocalNote

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(notesBucket)

		return b.ForEach(func(k, v []byte) error {
			var n notes.LocalNote
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}

			all = append(all, n)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	return all, nil
}

// FindByID returns the note with the given id, or nil if not found.
func (s *Store) FindByID(id string) (*notes.LocalNote, error) {
	var n *notes.LocalNote

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(notesBucket).Get([]byte(id))
		if v == nil {
			return nil
		}

		n = &notes.LocalNote{}

		return json.Unmarshal(v, n)
	})
	if err != nil {
		return nil, fmt.Errorf("finding note %s: %w", id, err)
	}

	return n, nil
}

// Upsert creates or updates a note. With an empty existingID a new note
// is created with a fresh id and both timestamps set to now; otherwise
// the given fields are merged into the existing record and UpdatedAt is
// advanced. Returns the stored note.
func (s *Store) Upsert(upd NoteUpdate, existingID string) (notes.LocalNote, error) {
	var stored notes.LocalNote

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(notesBucket)
		now := time.Now().UTC()

		if existingID == "" {
			id := uuid.NewString()
			if upd.ID != nil && *upd.ID != "" {
				id = *upd.ID
			}
			stored = notes.LocalNote{
				ID:        id,
				CreatedAt: now,
				UpdatedAt: now,
			}
		} else {
			v := b.Get([]byte(existingID))
			if v == nil {
				return fmt.Errorf("note %s does not exist", existingID)
			}
			if err := json.Unmarshal(v, &stored); err != nil {
				return err
			}
			stored.UpdatedAt = now
		}

		applyUpdate(&stored, upd)

		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		return b.Put([]byte(stored.ID), data)
	})
	if err != nil {
		return notes.LocalNote{}, fmt.Errorf("upserting note: %w", err)
	}

	return stored, nil
}

// Delete removes the local record. Removing the cloud copy first is the
// sync engine's job; the store only owns local state.
func (s *Store) Delete(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(notesBucket).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", id, err)
	}

	return nil
}

// Cursor returns the sync cursor for a user, defaulting to a zero cursor
// (no sync has ever run) when the user has none.
func (s *Store) Cursor(userID string) (SyncCursor, error) {
	var c SyncCursor

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(syncBucket).Get([]byte(userID))
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &c)
	})
	if err != nil {
		return SyncCursor{}, fmt.Errorf("reading sync cursor for %s: %w", userID, err)
	}

	return c, nil
}

// SetCursor persists the sync cursor for a user.
func (s *Store) SetCursor(userID string, c SyncCursor) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}

		return tx.Bucket(syncBucket).Put([]byte(userID), data)
	})
	if err != nil {
		return fmt.Errorf("saving sync cursor for %s: %w", userID, err)
	}

	return nil
}

func applyUpdate(n *notes.LocalNote, upd NoteUpdate) {
	if upd.Title != nil {
		n.Title = *upd.Title
	}
	if upd.Content != nil {
		n.Content = *upd.Content
	}
	if upd.CloudID != nil {
		n.CloudID = *upd.CloudID
	}
	if upd.CloudUpdatedAt != nil {
		n.CloudUpdatedAt = *upd.CloudUpdatedAt
	}
	if upd.ContentHash != nil {
		n.ContentHash = *upd.ContentHash
	}
	if upd.SyncStatus != nil {
		n.SyncStatus = *upd.SyncStatus
	}
	if upd.LastSyncAt != nil {
		n.LastSyncAt = *upd.LastSyncAt
	}
	if upd.CreatedAt != nil {
		n.CreatedAt = *upd.CreatedAt
	}
	if upd.UpdatedAt != nil {
		n.UpdatedAt = *upd.UpdatedAt
	}
}

func dbPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing the note database to
		// the current directory where it might end up inside a
		// source-controlled tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".notesync", "notes.db")
}
