package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// TreasuryService defines the methods that the treasury handler requires from
// the service layer.
type TreasuryService interface {
	Balance() int64
	Fund(ctx context.Context, caller common.Address, amount int64) error
	Ledger(ctx context.Context, bondID int64, opts domain.ListOpts) ([]domain.TreasuryEntry, error)
}

// TreasuryHandler serves treasury balance, funding, and ledger endpoints.
type TreasuryHandler struct {
	treasury TreasuryService
	logger   *slog.Logger
}

// NewTreasuryHandler creates a TreasuryHandler with the given service and
// logger.
func NewTreasuryHandler(treasury TreasuryService, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{
		treasury: treasury,
		logger:   logger,
	}
}

// GetBalance returns the current treasury balance.
// GET /api/treasury
func (h *TreasuryHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"balance": h.treasury.Balance()})
}

// fundRequest carries a treasury deposit.
type fundRequest struct {
	Caller string `json:"caller"`
	Amount int64  `json:"amount"`
}

// Fund deposits native currency into the shared treasury.
// POST /api/treasury/fund
func (h *TreasuryHandler) Fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.treasury.Fund(r.Context(), caller, req.Amount); err != nil {
		writeServiceError(w, r, h.logger, err, "fund treasury")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"balance": h.treasury.Balance()})
}

// ListLedger returns treasury ledger rows, optionally scoped to one bond.
// GET /api/treasury/ledger?bond_id=7&limit=50&offset=0
func (h *TreasuryHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var bondID int64
	if v := r.URL.Query().Get("bond_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid bond_id")
			return
		}
		bondID = n
	}

	entries, err := h.treasury.Ledger(r.Context(), bondID, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list ledger")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
