package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// IssuerService defines the methods that the issuer handler requires from the
// service layer.
type IssuerService interface {
	Register(ctx context.Context, caller common.Address) error
	Get(ctx context.Context, wallet common.Address) (domain.Issuer, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Issuer, error)
	ApproveKYC(ctx context.Context, caller, wallet common.Address) error
	RevokeKYC(ctx context.Context, caller, wallet common.Address) error
}

// IssuerHandler serves issuer registration and KYC HTTP endpoints.
type IssuerHandler struct {
	issuers IssuerService
	logger  *slog.Logger
}

// NewIssuerHandler creates an IssuerHandler with the given service and logger.
func NewIssuerHandler(issuers IssuerService, logger *slog.Logger) *IssuerHandler {
	return &IssuerHandler{
		issuers: issuers,
		logger:  logger,
	}
}

// ListIssuers returns registered issuers with pagination.
// GET /api/issuers?limit=50&offset=0
func (h *IssuerHandler) ListIssuers(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	issuers, err := h.issuers.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list issuers")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"issuers": issuers,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetIssuer returns a single issuer record by wallet address.
// GET /api/issuers/{wallet}
func (h *IssuerHandler) GetIssuer(w http.ResponseWriter, r *http.Request) {
	wallet, ok := parseAddress(pathParam(r, "wallet"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	issuer, err := h.issuers.Get(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get issuer")
		return
	}

	writeJSON(w, http.StatusOK, issuer)
}

// Register self-registers the caller as an issuer.
// POST /api/issuers/register
func (h *IssuerHandler) Register(w http.ResponseWriter, r *http.Request) {
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

	if err := h.issuers.Register(r.Context(), caller); err != nil {
		writeServiceError(w, r, h.logger, err, "register issuer")
		return
	}

	issuer, err := h.issuers.Get(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "register issuer")
		return
	}
	writeJSON(w, http.StatusCreated, issuer)
}

// kyc runs one admin KYC action against the issuer in the path.
func (h *IssuerHandler) kyc(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, caller, wallet common.Address) error) {
	wallet, ok := parseAddress(pathParam(r, "wallet"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}
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

	if err := fn(r.Context(), caller, wallet); err != nil {
		writeServiceError(w, r, h.logger, err, op)
		return
	}

	issuer, err := h.issuers.Get(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, op)
		return
	}
	writeJSON(w, http.StatusOK, issuer)
}

// ApproveKYC grants KYC approval. Admin only.
// POST /api/issuers/{wallet}/kyc/approve
func (h *IssuerHandler) ApproveKYC(w http.ResponseWriter, r *http.Request) {
	h.kyc(w, r, "approve kyc", h.issuers.ApproveKYC)
}

// RevokeKYC withdraws KYC approval. Admin only.
// POST /api/issuers/{wallet}/kyc/revoke
func (h *IssuerHandler) RevokeKYC(w http.ResponseWriter, r *http.Request) {
	h.kyc(w, r, "revoke kyc", h.issuers.RevokeKYC)
}
