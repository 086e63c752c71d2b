package store

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nbarrett/notesync/internal/notes"
)

// exportDoc is the YAML document written by Export and read by Import.
type exportDoc struct {
	ExportedAt time.Time    `yaml:"exportedAt"`
	Notes      []exportNote `yaml:"notes"`
}

// exportNote carries the user-visible fields plus enough identity for a
// round trip. Sync metadata is deliberately omitted: an imported note is
// local-only until the next sync pass uploads it.
type exportNote struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	Content   string    `yaml:"content"`
	CreatedAt time.Time `yaml:"createdAt"`
	UpdatedAt time.Time `yaml:"updatedAt"`
}

// Export writes the full note collection as a YAML document.
func (s *Store) Export(w io.Writer) error {
	all, err := s.List()
	if err != nil {
		return fmt.Errorf("exporting notes: %w", err)
	}

	doc := exportDoc{ExportedAt: time.Now().UTC()}
	for _, n := range all {
		doc.Notes = append(doc.Notes, exportNote{
			ID:        n.ID,
			Title:     n.Title,
			Content:   n.Content,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		})
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}

	return nil
}

// Import reads a YAML export and merges it into the store. Notes whose
// id already exists are updated in place, everything else is created as
// a new local-only note. Returns the number of notes imported.
func (s *Store) Import(r io.Reader) (int, error) {
	var doc exportDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decoding import: %w", err)
	}

	localOnly := notes.StatusLocalOnly

	count := 0
	for _, en := range doc.Notes {
		existingID := ""
		if en.ID != "" {
			existing, err := s.FindByID(en.ID)
			if err != nil {
				return count, err
			}
			if existing != nil {
				existingID = en.ID
			}
		}

		upd := NoteUpdate{
			Title:   &en.Title,
			Content: &en.Content,
		}
		if existingID == "" {
			upd.SyncStatus = &localOnly
			if en.ID != "" {
				// Keep the exported id so a round trip preserves
				// identity and a later upload dedupes on localId.
				upd.ID = &en.ID
			}
			if !en.CreatedAt.IsZero() {
				upd.CreatedAt = &en.CreatedAt
			}
		}

		if _, err := s.Upsert(upd, existingID); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}
