package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/engine"
	"github.com/alanyoungcy/bondledger/internal/service"
)

// BondService defines the methods that the bond handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type BondService interface {
	Get(ctx context.Context, id int64) (domain.Bond, error)
	ListByIssuer(ctx context.Context, issuer common.Address, opts domain.ListOpts) ([]domain.Bond, error)
	ListByStatus(ctx context.Context, status domain.BondStatus, opts domain.ListOpts) ([]domain.Bond, error)
	Count(ctx context.Context) (int64, error)
	Holdings(ctx context.Context, bondID int64) ([]domain.Holding, error)
	HoldingsByWallet(ctx context.Context, wallet common.Address) ([]domain.Holding, error)

	Create(ctx context.Context, caller common.Address, params domain.BondParams) (int64, error)
	Submit(ctx context.Context, caller common.Address, id int64) error
	Review(ctx context.Context, caller common.Address, id int64) error
	Approve(ctx context.Context, caller common.Address, id int64) error
	Issue(ctx context.Context, caller common.Address, id int64, meta engine.TokenMetadata) error
	MarkMature(ctx context.Context, caller common.Address, id int64) error
	ForceClose(ctx context.Context, caller common.Address, id int64) error
	Buy(ctx context.Context, caller common.Address, id int64, units, payment int64) error
	Redeem(ctx context.Context, caller common.Address, id int64, units int64) (service.RedemptionResult, error)
}

// BondHandler serves bond lifecycle and trading HTTP endpoints.
type BondHandler struct {
	bonds  BondService
	logger *slog.Logger
}

// NewBondHandler creates a BondHandler with the given service and logger.
func NewBondHandler(bonds BondService, logger *slog.Logger) *BondHandler {
	return &BondHandler{
		bonds:  bonds,
		logger: logger,
	}
}

// listBondsResponse wraps the list endpoint output with metadata.
type listBondsResponse struct {
	Bonds  []domain.Bond `json:"bonds"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListBonds returns bonds filtered by issuer or status with pagination.
// GET /api/bonds?status=issued&issuer=0x..&limit=50&offset=0
func (h *BondHandler) ListBonds(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		bonds []domain.Bond
		err   error
	)
	if issuerHex := r.URL.Query().Get("issuer"); issuerHex != "" {
		issuer, ok := parseAddress(issuerHex)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid issuer address")
			return
		}
		bonds, err = h.bonds.ListByIssuer(r.Context(), issuer, opts)
	} else {
		status := domain.BondStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = domain.BondIssued
		}
		bonds, err = h.bonds.ListByStatus(r.Context(), status, opts)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list bonds")
		return
	}

	total, err := h.bonds.Count(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "count bonds")
		return
	}

	writeJSON(w, http.StatusOK, listBondsResponse{
		Bonds:  bonds,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetBond returns a single bond by its ID.
// GET /api/bonds/{id}
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bond id")
		return
	}

	bond, err := h.bonds.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get bond")
		return
	}

	writeJSON(w, http.StatusOK, bond)
}

// ListHoldings returns all open positions in a bond.
// GET /api/bonds/{id}/holdings
func (h *BondHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bond id")
		return
	}

	holdings, err := h.bonds.Holdings(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list holdings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"holdings": holdings})
}

// ListWalletHoldings returns a wallet's positions across all bonds.
// GET /api/holdings/{wallet}
func (h *BondHandler) ListWalletHoldings(w http.ResponseWriter, r *http.Request) {
	wallet, ok := parseAddress(pathParam(r, "wallet"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	holdings, err := h.bonds.HoldingsByWallet(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list wallet holdings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"holdings": holdings})
}

// createBondRequest is the body of the bond creation endpoint. Duration is in
// whole seconds; money fields are in the smallest native denomination.
type createBondRequest struct {
	Caller          string `json:"caller"`
	InterestRateBP  int64  `json:"interest_rate_bp"`
	CouponRateBP    int64  `json:"coupon_rate_bp"`
	FaceValue       int64  `json:"face_value"`
	AvailableUnits  int64  `json:"available_units"`
	TargetRaise     int64  `json:"target_raise"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// CreateBond creates a draft bond owned by the calling issuer.
// POST /api/bonds
func (h *BondHandler) CreateBond(w http.ResponseWriter, r *http.Request) {
	var req createBondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	id, err := h.bonds.Create(r.Context(), caller, domain.BondParams{
		InterestRateBP: req.InterestRateBP,
		CouponRateBP:   req.CouponRateBP,
		FaceValue:      req.FaceValue,
		AvailableUnits: req.AvailableUnits,
		TargetRaise:    req.TargetRaise,
		Duration:       time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "create bond")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// callerRequest is the body shared by the bare lifecycle transition endpoints.
type callerRequest struct {
	Caller string `json:"caller"`
}

// transition runs one lifecycle step and writes the updated bond back.
func (h *BondHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, caller common.Address, id int64) error) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bond id")
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

	if err := fn(r.Context(), caller, id); err != nil {
		writeServiceError(w, r, h.logger, err, op)
		return
	}

	bond, err := h.bonds.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, op)
		return
	}
	writeJSON(w, http.StatusOK, bond)
}

// SubmitBond moves a draft into the review queue.
// POST /api/bonds/{id}/submit
func (h *BondHandler) SubmitBond(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit bond", h.bonds.Submit)
}

// ReviewBond marks a submitted bond as under review.
// POST /api/bonds/{id}/review
func (h *BondHandler) ReviewBond(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "review bond", h.bonds.Review)
}

// ApproveBond approves a bond for issuance.
// POST /api/bonds/{id}/approve
func (h *BondHandler) ApproveBond(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve bond", h.bonds.Approve)
}

// MarkMature transitions an issued bond past its maturity time.
// POST /api/bonds/{id}/mature
func (h *BondHandler) MarkMature(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "mark mature", h.bonds.MarkMature)
}

// ForceClose settles a matured bond with outstanding units voided.
// POST /api/bonds/{id}/force-close
func (h *BondHandler) ForceClose(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "force close", h.bonds.ForceClose)
}

// issueBondRequest carries the token metadata minted alongside issuance.
type issueBondRequest struct {
	Caller string `json:"caller"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// IssueBond mints the bond's token class and opens it for purchase.
// POST /api/bonds/{id}/issue
func (h *BondHandler) IssueBond(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bond id")
		return
	}
	var req issueBondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	meta := engine.TokenMetadata{Name: req.Name, Symbol: req.Symbol}
	if err := h.bonds.Issue(r.Context(), caller, id, meta); err != nil {
		writeServiceError(w, r, h.logger, err, "issue bond")
		return
	}

	bond, err := h.bonds.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "issue bond")
		return
	}
	writeJSON(w, http.StatusOK, bond)
}

// buyBondRequest carries a purchase. Payment must equal units times face
// value exactly.
type buyBondRequest struct {
	Caller  string `json:"caller"`
	Units   int64  `json:"units"`
	Payment int64  `json:"payment"`
}

// BuyBond purchases units of an issued bond.
// POST /api/bonds/{id}/buy
func (h *BondHandler) BuyBond(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bond id")
		return
	}
	var req buyBondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.bonds.Buy(r.Context(), caller, id, req.Units, req.Payment); err != nil {
		writeServiceError(w, r, h.logger, err, "buy bond")
		return
	}

	bond, err := h.bonds.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "buy bond")
		return
	}
	writeJSON(w, http.StatusOK, bond)
}

// redeemBondRequest carries a redemption of matured units.
type redeemBondRequest struct {
	Caller string `json:"caller"`
	Units  int64  `json:"units"`
}

// RedeemBond redeems units of a matured bond and returns the signed
// settlement receipt.
// POST /api/bonds/{id}/redeem
func (h *BondHandler) RedeemBond(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bond id")
		return
	}
	var req redeemBondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	result, err := h.bonds.Redeem(r.Context(), caller, id, req.Units)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "redeem bond")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
