package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mtlprog/cashin-detector/internal/blockchainapi"
	"github.com/mtlprog/cashin-detector/internal/domain"
	"github.com/mtlprog/cashin-detector/internal/scanner"
	"github.com/mtlprog/cashin-detector/internal/wallethistory"
)

// WalletStore is the read side of the wallet history repository.
type WalletStore interface {
	TryGet(ctx context.Context, integrationLayerID, address string) (domain.WalletHistoryAggregate, bool, error)
	List(ctx context.Context, filter wallethistory.Filter) ([]domain.WalletHistoryAggregate, error)
}

// Scanner runs one balance scan.
type Scanner interface {
	Scan(ctx context.Context) (scanner.Result, error)
}

// BlockchainInfo describes an enabled blockchain.
type BlockchainInfo struct {
	Type             string `json:"type"`
	APIURL           string `json:"apiUrl"`
	HotWalletAddress string `json:"hotWalletAddress"`
}

// Handler provides HTTP endpoints for the operator API.
type Handler struct {
	wallets     WalletStore
	blockchains []BlockchainInfo
	scanners    map[string]Scanner
}

// NewHandler creates a new API handler.
func NewHandler(wallets WalletStore, blockchains []BlockchainInfo, scanners map[string]Scanner) *Handler {
	return &Handler{wallets: wallets, blockchains: blockchains, scanners: scanners}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListBlockchains handles GET /api/v1/blockchains.
func (h *Handler) ListBlockchains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.blockchains)
}

// GetWallet handles GET /api/v1/wallets/{blockchainType}/{address}.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	blockchainType := chi.URLParam(r, "blockchainType")
	address := chi.URLParam(r, "address")

	agg, ok, err := h.wallets.TryGet(r.Context(), blockchainType, address)
	if err != nil {
		slog.Error("failed to get wallet history", "blockchain", blockchainType, "address", address, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "wallet history not found")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// ListWallets handles GET /api/v1/wallets.
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := wallethistory.Filter{
		BlockchainType: q.Get("blockchainType"),
		State:          domain.WalletHistoryState(q.Get("state")),
	}

	switch filter.State {
	case "", domain.WalletHistoryStateStarted, domain.WalletHistoryStateStopped:
	default:
		writeError(w, http.StatusBadRequest, "invalid state, expected Started or Stopped")
		return
	}

	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = min(n, wallethistory.MaxListLimit)
		}
	}

	wallets, err := h.wallets.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list wallet history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if wallets == nil {
		wallets = []domain.WalletHistoryAggregate{}
	}
	writeJSON(w, http.StatusOK, wallets)
}

type scanResponse struct {
	scanner.Result
	Warning string `json:"warning,omitempty"`
}

// RunScan handles POST /api/v1/scans/{blockchainType}.
func (h *Handler) RunScan(w http.ResponseWriter, r *http.Request) {
	blockchainType := chi.URLParam(r, "blockchainType")
	s, ok := h.scanners[blockchainType]
	if !ok {
		writeError(w, http.StatusNotFound, "blockchain not registered")
		return
	}

	result, err := s.Scan(r.Context())
	var skipped *blockchainapi.SkippedEntriesError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, scanResponse{Result: result})
	case errors.As(err, &skipped):
		writeJSON(w, http.StatusOK, scanResponse{Result: result, Warning: err.Error()})
	default:
		slog.Error("manual scan failed", "blockchain", blockchainType, "error", err)
		writeError(w, http.StatusBadGateway, "scan failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
