package e2e_test

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nbarrett/notesync/internal/cloud"
	"github.com/nbarrett/notesync/internal/notes"
	"github.com/nbarrett/notesync/internal/store"
	syncengine "github.com/nbarrett/notesync/internal/sync"
)

const (
	testToken  = "e2e-test-token"
	testUserID = "e2e-user"
)

// wireNote mirrors the cloud API note shape.
type wireNote struct {
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

type wireUpsert struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentHash string `json:"contentHash"`
	LocalID     string `json:"localId"`
	CloudNoteID string `json:"cloudNoteId,omitempty"`
	NoteMode    string `json:"noteMode"`
}

// notesAPI is an in-memory stand-in for the cloud notes service. It
// implements the list, upsert, and delete routes the client speaks,
// with bearer-token auth and create deduplication by (localId, hash).
type notesAPI struct {
	mu     sync.Mutex
	notes  map[string]wireNote
	nextID int
}

func newNotesAPI() *notesAPI {
	return &notesAPI{notes: make(map[string]wireNote)}
}

func (a *notesAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/notes", a.withAuth(a.list))
	mux.HandleFunc("POST /api/notes", a.withAuth(a.upsert))
	mux.HandleFunc("DELETE /api/notes/{id}", a.withAuth(a.delete))

	return mux
}

func (a *notesAPI) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r)
	}
}

func (a *notesAPI) list(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := make([]wireNote, 0, len(a.notes))
	for _, n := range a.notes {
		all = append(all, n)
	}

	json.NewEncoder(w).Encode(map[string]any{"notes": all})
}

func (a *notesAPI) upsert(w http.ResponseWriter, r *http.Request) {
	var req wireUpsert
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed body")
		return
	}

	if req.Title == "" && req.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "empty note")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now().UTC()

	if req.CloudNoteID != "" {
		existing, ok := a.notes[req.CloudNoteID]
		if !ok {
			writeJSONError(w, http.StatusNotFound, "note not found")
			return
		}

		existing.Title = req.Title
		existing.Content = req.Content
		existing.ContentHash = req.ContentHash
		existing.UpdatedAt = now
		a.notes[req.CloudNoteID] = existing

		json.NewEncoder(w).Encode(existing)

		return
	}

	// Retried create: same local id and hash returns the existing
	// record instead of a duplicate.
	for _, n := range a.notes {
		if n.LocalID == req.LocalID && n.ContentHash == req.ContentHash {
			json.NewEncoder(w).Encode(n)
			return
		}
	}

	a.nextID++
	created := wireNote{
		ID:          fmt.Sprintf("cloud-%d", a.nextID),
		Title:       req.Title,
		Content:     req.Content,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      testUserID,
		ContentHash: req.ContentHash,
		NoteMode:    req.NoteMode,
		LocalID:     req.LocalID,
	}
	a.notes[created.ID] = created

	json.NewEncoder(w).Encode(created)
}

func (a *notesAPI) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.notes[id]; !ok {
		writeJSONError(w, http.StatusNotFound, "note not found")
		return
	}

	delete(a.notes, id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// seed places a note directly into the fake cloud, bypassing the API.
func (a *notesAPI) seed(n wireNote) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n.ContentHash == "" {
		n.ContentHash = notes.Fingerprint(n.Title, n.Content)
	}

	a.notes[n.ID] = n
}

func (a *notesAPI) get(cloudID string) (wireNote, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.notes[cloudID]

	return n, ok
}

// remove deletes a cloud note directly, simulating another device
// deleting it out-of-band.
func (a *notesAPI) remove(cloudID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.notes, cloudID)
}

func (a *notesAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.notes)
}

// findByTitle returns the first cloud note whose title contains the
// given fragment.
func (a *notesAPI) findByTitle(fragment string) (wireNote, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, n := range a.notes {
		if strings.Contains(n.Title, fragment) {
			return n, true
		}
	}

	return wireNote{}, false
}

// harness holds the full e2e stack: a real note store on disk, the real
// HTTP client pointed at the in-memory cloud, and the orchestrator
// wiring them together.
type harness struct {
	URL   string
	API   *notesAPI
	Store *store.Store
	Orch  *syncengine.Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	api := newNotesAPI()
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)

	st, err := store.LoadAt(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := cloud.NewClient(ts.URL, testToken, ts.Client())
	logger := slog.New(slog.DiscardHandler)

	return &harness{
		URL:   ts.URL,
		API:   api,
		Store: st,
		Orch:  syncengine.NewOrchestrator(st, client, testUserID, logger),
	}
}

func (h *harness) createLocalNote(t *testing.T, title, content string) notes.LocalNote {
	t.Helper()

	n, err := h.Store.Upsert(store.NoteUpdate{Title: &title, Content: &content}, "")
	require.NoError(t, err)

	return n
}
