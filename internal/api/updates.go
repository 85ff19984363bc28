package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/shell-updater/internal/codec"
	"github.com/nerrad567/shell-updater/internal/update"
)

// ResultResponse is the body returned by POST /updates/{target}.
type ResultResponse struct {
	RequestID      string `json:"request_id"`
	Target         string `json:"target"`
	Local          bool   `json:"local"`
	State          string `json:"state"`
	Outcome        string `json:"outcome"`
	FailureKind    string `json:"failure_kind,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	SkipReason     string `json:"skip_reason,omitempty"`
	PayloadVersion string `json:"payload_version,omitempty"`
	PayloadSize    int    `json:"payload_size"`
	Transferred    int    `json:"transferred"`
	DeviceVersion  string `json:"device_version,omitempty"`
	Verified       *bool  `json:"verified,omitempty"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
	DurationMS     int64  `json:"duration_ms"`
}

// StatusResponse is the body returned by GET /status.
type StatusResponse struct {
	DevicePresent bool              `json:"device_present"`
	Updating      bool              `json:"updating"`
	Releases      ReleasesResponse  `json:"releases"`
	Comparison    *codec.Comparison `json:"comparison,omitempty"`
}

// ReleasesResponse describes the published releases known to the registry.
type ReleasesResponse struct {
	Available       bool   `json:"available"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	DatabaseVersion uint32 `json:"database_version,omitempty"`
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func newResultResponse(res update.Result) ResultResponse {
	resp := ResultResponse{
		RequestID:      res.RequestID,
		Target:         string(res.Target),
		Local:          res.Local,
		State:          res.State.String(),
		Outcome:        res.Outcome.String(),
		SkipReason:     res.SkipReason,
		PayloadVersion: res.PayloadVersion,
		PayloadSize:    res.PayloadSize,
		Transferred:    res.Transferred,
		DeviceVersion:  res.DeviceVersion,
		Verified:       res.Verified,
		StartedAt:      res.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt:     res.FinishedAt.UTC().Format(time.RFC3339Nano),
		DurationMS:     res.Duration().Milliseconds(),
	}
	if res.Outcome == update.OutcomeFailed {
		resp.FailureKind = res.Kind.String()
		resp.Message = res.Kind.Message(res.Target)
		resp.Error = res.ErrorMessage()
	}
	return resp
}

// handleUpdate runs an update for the {target} path parameter. An empty
// body requests the published release; any other body is written as a
// local image. The response is sent once the request is terminal.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	target := update.Target(chi.URLParam(r, "target"))
	if !target.Valid() {
		writeNotFound(w, "unknown update target: "+string(target))
		return
	}

	local, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
				"update file exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeBadRequest(w, "reading update file: "+err.Error())
		return
	}
	if len(local) == 0 {
		local = nil
	}

	// A client that disconnects mid-transfer must not abort the write.
	ctx := context.WithoutCancel(r.Context())

	run := s.updater.UpdateFirmware
	if target == update.TargetDatabase {
		run = s.updater.UpdateDatabase
	}
	res, err := run(ctx, local)
	if errors.Is(err, update.ErrUpdateInProgress) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "another update is already running")
		return
	}
	if err != nil {
		s.logger.Error("update request failed", "target", target, "error", err)
		writeInternalError(w, "update request failed")
		return
	}

	writeJSON(w, http.StatusOK, newResultResponse(res))
}

// handleConnectivity reports host connectivity. Going online refreshes the
// release metadata; a failed refresh is a 502.
func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Online == nil {
		writeBadRequest(w, `expected {"online": bool}`)
		return
	}

	if err := s.updater.HandleConnectivity(r.Context(), *req.Online); err != nil {
		s.logger.Warn("connectivity change failed", "online", *req.Online, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "release metadata unavailable")
		return
	}

	s.handleStatus(w, r)
}

// handleStatus returns device, release and comparison state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.updater.Status()

	resp := StatusResponse{
		DevicePresent: st.DevicePresent,
		Updating:      st.Updating,
		Comparison:    st.Comparison,
		Releases:      ReleasesResponse{Available: st.Releases.Available()},
	}
	if fw, ok := st.Releases.Firmware(); ok {
		resp.Releases.FirmwareVersion = fw.Version.String()
	}
	if db, ok := st.Releases.Database(); ok {
		resp.Releases.DatabaseVersion = db.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHistory lists recent update requests, newest first.
//
// Query parameters:
//   - limit: 1..200, default 50
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.updater.History(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing update history failed", "error", err)
		writeInternalError(w, "failed to list update history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
