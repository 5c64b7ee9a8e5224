package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// AdminService defines the engine-level admin controls the handler needs.
type AdminService interface {
	Admin() common.Address
	Paused() bool
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
	TransferAdmin(ctx context.Context, caller, next common.Address) error
	EmergencyWithdraw(ctx context.Context, caller, to common.Address, amount int64) error
}

// UpgradeService defines the schema upgrade gate operations.
type UpgradeService interface {
	Current(ctx context.Context) (int, error)
	Upgrade(ctx context.Context, caller common.Address, target int, note string) error
}

// AdminHandler serves pause, admin transfer, emergency payout, upgrade,
// audit log, and archive retrieval endpoints.
type AdminHandler struct {
	admin   AdminService
	upgrade UpgradeService
	audit   domain.AuditStore
	blobs   domain.BlobReader
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler. upgrade, audit, and blobs may be
// nil; the corresponding endpoints then report 503.
func NewAdminHandler(admin AdminService, upgrade UpgradeService, audit domain.AuditStore, blobs domain.BlobReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:   admin,
		upgrade: upgrade,
		audit:   audit,
		blobs:   blobs,
		logger:  logger,
	}
}

// GetStatus reports the current admin address, pause flag, and schema version.
// GET /api/admin/status
func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"admin":     h.admin.Admin().Hex(),
		"paused":    h.admin.Paused(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.upgrade != nil {
		version, err := h.upgrade.Current(r.Context())
		if err != nil {
			writeServiceError(w, r, h.logger, err, "schema version")
			return
		}
		status["schema_version"] = version
	}
	writeJSON(w, http.StatusOK, status)
}

// Pause halts all mutating engine operations. Admin only.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "pause", h.admin.Pause)
}

// Unpause resumes mutating engine operations. Admin only.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "unpause", h.admin.Unpause)
}

func (h *AdminHandler) adminAction(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, caller common.Address) error) {
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := fn(r.Context(), caller); err != nil {
		writeServiceError(w, r, h.logger, err, op)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"paused": h.admin.Paused()})
}

// transferAdminRequest carries an admin handover.
type transferAdminRequest struct {
	Caller string `json:"caller"`
	Next   string `json:"next"`
}

// TransferAdmin hands the admin role to another wallet. Admin only.
// POST /api/admin/transfer
func (h *AdminHandler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req transferAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	next, ok := parseAddress(req.Next)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid next admin address")
		return
	}

	if err := h.admin.TransferAdmin(r.Context(), caller, next); err != nil {
		writeServiceError(w, r, h.logger, err, "transfer admin")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"admin": h.admin.Admin().Hex()})
}

// emergencyRequest carries an emergency treasury payout.
type emergencyRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// EmergencyWithdraw pays treasury funds to an admin-chosen recipient while
// the engine is paused. Admin only.
// POST /api/admin/emergency-withdraw
func (h *AdminHandler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req emergencyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	if err := h.admin.EmergencyWithdraw(r.Context(), caller, to, req.Amount); err != nil {
		writeServiceError(w, r, h.logger, err, "emergency withdraw")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// upgradeRequest carries a schema upgrade.
type upgradeRequest struct {
	Caller string `json:"caller"`
	Target int    `json:"target"`
	Note   string `json:"note"`
}

// Upgrade advances the persisted schema version through the gate. Admin only.
// POST /api/admin/upgrade
func (h *AdminHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	if h.upgrade == nil {
		writeError(w, http.StatusServiceUnavailable, "upgrade gate not configured")
		return
	}
	var req upgradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.upgrade.Upgrade(r.Context(), caller, req.Target, req.Note); err != nil {
		writeServiceError(w, r, h.logger, err, "upgrade")
		return
	}

	version, err := h.upgrade.Current(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "upgrade")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"schema_version": version})
}

// ListAudit returns audit log entries, newest last.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	opts := parseListOpts(r)

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list audit")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// ListArchive returns metadata for archived objects under a key prefix.
// GET /api/admin/archive?prefix=bonds/
func (h *AdminHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}
	prefix := r.URL.Query().Get("prefix")

	objects, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list archive")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prefix":  prefix,
		"objects": objects,
	})
}

// GetArchive streams one archived object (a JSONL export produced by the
// archiver). HEAD checks existence without downloading the body.
// GET /api/admin/archive/{path...}
func (h *AdminHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}
	path := pathParam(r, "path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing archive path")
		return
	}

	if r.Method == http.MethodHead {
		ok, err := h.blobs.Exists(r.Context(), path)
		if err != nil {
			writeServiceError(w, r, h.logger, err, "head archive")
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := h.blobs.Get(r.Context(), path)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stream archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
