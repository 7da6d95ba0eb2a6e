package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wallet-explorer/internal/graph"
	"github.com/wallet-explorer/internal/models"
	"github.com/wallet-explorer/internal/types"
)

// handleHealth reports the server's own status and its dependencies'.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK

	deps := map[string]string{}
	if s.db != nil {
		deps["postgres"] = "ok"
		if err := s.db.Ping(ctx); err != nil {
			deps["postgres"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if s.cache != nil {
		deps["redis"] = "ok"
		if err := s.cache.Ping(ctx); err != nil {
			deps["redis"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	body := map[string]interface{}{
		"status":  "healthy",
		"service": "wallet-explorer",
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}

	respondJSON(w, status, body)
}

// handleGetTransactions serves one page of an address's feed.
// GET /api/transactions/{address}?direction=initial|older|newer&index=N&force=true
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	direction, cursor, force := pageParams(r)

	page, err := s.queryService.FetchPage(r.Context(), address, direction, cursor, force)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// handleGetTransaction serves one transaction by hash.
// GET /api/transaction/{hash}
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(mux.Vars(r)["hash"])

	tx, err := s.queryService.GetTransaction(r.Context(), hash)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

// handleGetGraph serves the radial layout for one page of an address's feed.
// GET /api/graph/{address}?direction=initial|older|newer&index=N
func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	direction, cursor, force := pageParams(r)

	page, err := s.queryService.FetchPage(r.Context(), address, direction, cursor, force)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	transactions := make([]*models.Transaction, len(page.Transactions))
	for i, view := range page.Transactions {
		transactions[i] = view.Transaction
	}

	view := graph.Build(page.Address, transactions)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"graph":        view,
		"newestCursor": page.NewestCursor,
		"oldestCursor": page.OldestCursor,
		"hasMore":      page.HasMore,
	})
}

// handleGetAddress serves an address summary.
// GET /api/address/{address}
func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	summary, err := s.queryService.Summarize(r.Context(), address)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// pageParams reads the shared pagination query parameters. The service
// validates them; missing direction means the initial page.
func pageParams(r *http.Request) (types.PageDirection, string, bool) {
	direction := types.PageDirection(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = types.PageInitial
	}
	return direction, r.URL.Query().Get("index"), r.URL.Query().Get("force") == "true"
}
