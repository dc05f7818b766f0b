package api

import (
	"encoding/json"
	"net/http"
	"time"

	syncengine "github.com/shaharnoy/Klettrack-sub002/internal/sync"
)

const (
	maxPushBatch    = 200
	defaultPullPage = 200
	maxPullPage     = 500
)

// Wire types. The sync engine works with Go-native types; these mirror them
// with the JSON field names clients speak.

type wireMutation struct {
	OpID            string                     `json:"opId"`
	Entity          string                     `json:"entity"`
	EntityID        string                     `json:"entityId"`
	Type            string                     `json:"type"`
	BaseVersion     int64                      `json:"baseVersion"`
	UpdatedAtClient string                     `json:"updatedAtClient"`
	Payload         map[string]json.RawMessage `json:"payload,omitempty"`
}

type pushRequest struct {
	DeviceID   string         `json:"deviceId"`
	BaseCursor string         `json:"baseCursor"`
	Mutations  []wireMutation `json:"mutations"`
}

type wireConflict struct {
	OpID          string          `json:"opId"`
	Entity        string          `json:"entity"`
	EntityID      string          `json:"entityId"`
	Reason        string          `json:"reason"`
	ServerVersion *int64          `json:"serverVersion"`
	ServerDoc     json.RawMessage `json:"serverDoc,omitempty"`
}

type wireFailure struct {
	OpID   string `json:"opId"`
	Reason string `json:"reason"`
}

type pushResponse struct {
	AcknowledgedOpIDs []string       `json:"acknowledgedOpIds"`
	Conflicts         []wireConflict `json:"conflicts"`
	Failed            []wireFailure  `json:"failed"`
	NewCursor         string         `json:"newCursor"`
}

type pullRequest struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

type wireChange struct {
	Entity   string          `json:"entity"`
	Type     string          `json:"type"`
	EntityID string          `json:"entityId"`
	Doc      json.RawMessage `json:"doc,omitempty"`
}

type pullResponse struct {
	Changes    []wireChange `json:"changes"`
	NextCursor string       `json:"nextCursor"`
	HasMore    bool         `json:"hasMore"`
}

// handleSyncPush applies a batch of client mutations to the record store.
// Each mutation is classified independently; the batch as a whole always
// succeeds unless the request itself is malformed or oversized.
func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "deviceId is required")
		return
	}
	if len(req.Mutations) > maxPushBatch {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBatchTooLarge, "push batch exceeds 200 mutations")
		return
	}

	muts := make([]syncengine.Mutation, len(req.Mutations))
	for i, wm := range req.Mutations {
		// Timestamp parse failures become the zero time; the engine treats
		// client timestamps as advisory, so a bad clock never blocks a write.
		ts, _ := time.Parse(time.RFC3339Nano, wm.UpdatedAtClient)
		muts[i] = syncengine.Mutation{
			OpID:            wm.OpID,
			Entity:          wm.Entity,
			EntityID:        wm.EntityID,
			Type:            wm.Type,
			BaseVersion:     wm.BaseVersion,
			UpdatedAtClient: ts,
			Payload:         wm.Payload,
		}
	}

	log := logFor(r.Context())

	tx, err := s.records.BeginTx(r.Context(), nil)
	if err != nil {
		log.Error("begin push tx", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	defer tx.Rollback()

	result, err := syncengine.ApplyMutations(tx, user.UserID, muts)
	if err != nil {
		log.Error("apply mutations", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	if err := tx.Commit(); err != nil {
		log.Error("commit push tx", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}

	s.metrics.RecordPushMutations(int64(len(result.AcknowledgedOpIDs)))
	s.metrics.RecordPushConflicts(int64(len(result.Conflicts)))

	// Device cursor bookkeeping is best-effort; a failure here must not fail
	// a push that already committed.
	if seq, derr := syncengine.DecodeCursor(result.NewCursor); derr == nil {
		if uerr := s.store.UpsertDeviceCursor(user.UserID, req.DeviceID, seq); uerr != nil {
			log.Warn("upsert device cursor", "device_id", req.DeviceID, "err", uerr)
		}
	}

	log.Info("sync push",
		"device_id", req.DeviceID,
		"mutations", len(req.Mutations),
		"acked", len(result.AcknowledgedOpIDs),
		"conflicts", len(result.Conflicts),
		"failed", len(result.Failed))

	resp := pushResponse{
		AcknowledgedOpIDs: result.AcknowledgedOpIDs,
		Conflicts:         make([]wireConflict, 0, len(result.Conflicts)),
		Failed:            make([]wireFailure, 0, len(result.Failed)),
		NewCursor:         result.NewCursor,
	}
	if resp.AcknowledgedOpIDs == nil {
		resp.AcknowledgedOpIDs = []string{}
	}
	for _, c := range result.Conflicts {
		resp.Conflicts = append(resp.Conflicts, wireConflict{
			OpID:          c.OpID,
			Entity:        c.Entity,
			EntityID:      c.EntityID,
			Reason:        c.Reason,
			ServerVersion: c.ServerVersion,
			ServerDoc:     c.ServerDoc,
		})
	}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, wireFailure{OpID: f.OpID, Reason: f.Reason})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSyncPull returns one page of the caller's change feed, starting
// strictly after the supplied cursor.
func (s *Server) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	afterSeq, err := syncengine.DecodeCursor(req.Cursor)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed cursor")
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultPullPage
	}
	if limit > maxPullPage {
		limit = maxPullPage
	}

	log := logFor(r.Context())

	tx, err := s.records.BeginTx(r.Context(), nil)
	if err != nil {
		log.Error("begin pull tx", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	defer tx.Rollback()

	result, err := syncengine.ChangesSince(tx, user.UserID, afterSeq, limit)
	if err != nil {
		log.Error("changes since", "cursor", req.Cursor, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	if err := tx.Commit(); err != nil {
		log.Error("commit pull tx", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}

	s.metrics.RecordPullRequest()

	resp := pullResponse{
		Changes:    make([]wireChange, 0, len(result.Changes)),
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	}
	for _, c := range result.Changes {
		resp.Changes = append(resp.Changes, wireChange{
			Entity:   c.Entity,
			Type:     c.Type,
			EntityID: c.EntityID,
			Doc:      c.Doc,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
