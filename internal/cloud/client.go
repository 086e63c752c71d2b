// Package cloud is the stateless HTTP transport to the remote note
// store. Each call is an independent request/response; a failed call
// surfaces a typed error and never leaves partial state behind.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	syncerrors "github.com/nbarrett/notesync/internal/errors"
	"github.com/nbarrett/notesync/internal/notes"
)

// defaultNoteMode is sent with uploads when the note does not carry a
// mode of its own. The engine only syncs markdown documents.
const defaultNoteMode = "markdown"

// Client talks to the remote note store's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates an API client with the given http.Client.
// If httpClient is nil, a client with a 30s timeout is used.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
	}
}

// do sends a JSON request and decodes the response into result.
// Non-2xx responses become a TransportError classified by status; a
// request that never reached the server becomes ErrNetwork.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &syncerrors.TransportError{Op: op, Kind: syncerrors.ErrNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &syncerrors.TransportError{Op: op, Kind: syncerrors.ErrNetwork, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &syncerrors.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Kind:       syncerrors.Classify(resp.StatusCode),
			Message:    gjson.GetBytes(respBody, "error").Str,
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", endpoint, err)
		}
	}

	return nil
}

// Upload pushes one note to the cloud. A note with a CloudID is an
// update-by-id; if that id no longer exists remotely the upload falls
// back to creating a new record rather than failing. A note without a
// CloudID is a create, carrying the (localId, contentHash) pair so a
// retried create returns the existing record instead of a duplicate.
func (c *Client) Upload(ctx context.Context, n notes.LocalNote) (UploadResult, error) {
	req := upsertNoteRequest{
		Title:       n.Title,
		Content:     n.Content,
		ContentHash: notes.Fingerprint(n.Title, n.Content),
		LocalID:     n.ID,
		CloudNoteID: n.CloudID,
		NoteMode:    defaultNoteMode,
	}

	var stored remoteNote
	err := c.do(ctx, "upload", http.MethodPost, "/api/notes", req, &stored)
	if err != nil && n.CloudID != "" && isNotFound(err) {
		// Remote copy was deleted out-of-band. Create a fresh record.
		req.CloudNoteID = ""
		err = c.do(ctx, "upload", http.MethodPost, "/api/notes", req, &stored)
	}
	if err != nil {
		return UploadResult{}, err
	}

	hash := stored.ContentHash
	if hash == "" {
		hash = req.ContentHash
	}

	return UploadResult{
		CloudID:        stored.ID,
		CloudUpdatedAt: stored.UpdatedAt,
		ContentHash:    hash,
	}, nil
}

// DownloadAll returns every note the authenticated user owns.
func (c *Client) DownloadAll(ctx context.Context) ([]notes.RemoteNoteRecord, error) {
	var resp listNotesResponse
	if err := c.do(ctx, "download", http.MethodGet, "/api/notes", nil, &resp); err != nil {
		return nil, err
	}

	records := make([]notes.RemoteNoteRecord, 0, len(resp.Notes))
	for _, rn := range resp.Notes {
		records = append(records, rn.toRecord())
	}

	return records, nil
}

// Delete removes a note from the cloud by its remote id. A 404 means
// the record is already gone and is treated as success.
func (c *Client) Delete(ctx context.Context, cloudID string) error {
	err := c.do(ctx, "delete", http.MethodDelete, "/api/notes/"+cloudID, nil, nil)
	if err != nil && isNotFound(err) {
		return nil
	}

	return err
}

// ExecuteBatch runs a list of operations as a single all-or-nothing
// transaction on the server. Results come back one per operation, in
// order.
func (c *Client) ExecuteBatch(ctx context.Context, ops []BatchOperation) ([]BatchResult, error) {
	req := batchRequest{Operations: make([]batchWireOp, 0, len(ops))}
	for _, op := range ops {
		wire := batchWireOp{Type: op.Type, CloudNoteID: op.CloudNoteID}
		if op.Note != nil {
			wire.Note = &upsertNoteRequest{
				Title:       op.Note.Title,
				Content:     op.Note.Content,
				ContentHash: notes.Fingerprint(op.Note.Title, op.Note.Content),
				LocalID:     op.Note.ID,
				CloudNoteID: op.Note.CloudID,
				NoteMode:    defaultNoteMode,
			}
		}
		req.Operations = append(req.Operations, wire)
	}

	var resp batchResponse
	if err := c.do(ctx, "batch", http.MethodPut, "/api/notes/batch", req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) != len(ops) {
		return nil, fmt.Errorf("batch returned %d results for %d operations", len(resp.Results), len(ops))
	}

	return resp.Results, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, syncerrors.ErrNotFound)
}
