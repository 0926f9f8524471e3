/*
transactions.go - Transaction endpoints

ENDPOINTS:
  GET    /api/transactions                 Filtered listing
  POST   /api/transactions                 Create (always Pending)
  GET    /api/transactions/pending         For Approval queue, oldest first
  GET    /api/transactions/recent          Recent N (?limit)
  GET    /api/transactions/statistics      Yearly counts and totals
  GET    /api/transactions/next-number     Preview sequence numbers
  GET    /api/transactions/{id}            Get by id
  PUT    /api/transactions/{id}            Edit (Pending only)
  DELETE /api/transactions/{id}            Delete (Pending/Rejected only)
  POST   /api/transactions/{id}/status     Workflow transition
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/ledger"
)

// ListTransactions returns transactions matching the query filters:
// ?status, ?fundId, ?type, ?startDate, ?endDate, ?search.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.Filter{
		FundID:     q.Get("fundId"),
		SearchTerm: q.Get("search"),
	}

	if s := q.Get("status"); s != "" {
		status, err := budget.ParseTransactionStatus(s)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.Status = status
	}
	if s := q.Get("type"); s != "" {
		txType, err := budget.ParseTransactionType(s)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.TransactionType = txType
	}

	start, err := parseDate("startDate", q.Get("startDate"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	end, err := parseDate("endDate", q.Get("endDate"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	filter.StartDate, filter.EndDate = start, end

	txs, err := h.Ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// CreateTransaction records a new transaction in Pending status.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTransaction(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	t.CreatedBy = userID(r)

	created, err := h.Ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*created))
}

// GetTransaction returns a single transaction, by id or by transaction
// number when ?byNumber=true.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		t   *budget.Transaction
		err error
	)
	if r.URL.Query().Get("byNumber") == "true" {
		t, err = h.Ledger.GetTransactionByNumber(r.Context(), id)
	} else {
		t, err = h.Ledger.GetTransaction(r.Context(), id)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

// UpdateTransaction rewrites the financial fields of a Pending
// transaction.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTransaction(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	t.ID = chi.URLParam(r, "id")

	updated, err := h.Ledger.UpdateTransaction(r.Context(), t)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*updated))
}

// DeleteTransaction removes a Pending or Rejected transaction.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateTransactionStatus moves the transaction through the approval
// workflow. The acting user from X-User-ID is stamped as approver when
// the target status requires it.
func (h *Handler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status, err := budget.ParseTransactionStatus(req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	updated, err := h.Ledger.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status, userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*updated))
}

// PendingApprovals returns the For Approval queue, oldest first.
func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.PendingApprovals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// RecentTransactions returns the newest transactions (?limit, default
// 10).
func (h *Handler) RecentTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.RecentTransactions(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// TransactionStatistics returns the year's per-status counts and total
// committed expenditure.
func (h *Handler) TransactionStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Ledger.YearlyStatistics(r.Context(), queryInt(r, "year"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := StatisticsDTO{
		Year:           stats.Year,
		TotalCount:     stats.TotalCount,
		CountByStatus:  make(map[string]int, len(stats.CountByStatus)),
		TotalCommitted: stats.TotalCommitted.StringFixed(2),
	}
	for status, count := range stats.CountByStatus {
		dto.CountByStatus[string(status)] = count
	}
	writeJSON(w, http.StatusOK, dto)
}

// NextNumbers previews the next transaction and document numbers
// without consuming them.
func (h *Handler) NextNumbers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	txn, err := h.Ledger.NextTransactionNumber(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	pr, err := h.Ledger.NextPRNumber(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	po, err := h.Ledger.NextPONumber(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dv, err := h.Ledger.NextDVNumber(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"transactionNumber": txn,
		"prNumber":          pr,
		"poNumber":          po,
		"dvNumber":          dv,
	})
}

func decodeTransaction(r *http.Request) (budget.Transaction, error) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return budget.Transaction{}, &budget.ValidationError{Field: "body", Reason: "invalid JSON"}
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return budget.Transaction{}, err
	}
	txDate, err := parseDate("transactionDate", req.TransactionDate)
	if err != nil {
		return budget.Transaction{}, err
	}
	checkDate, err := parseDate("checkDate", req.CheckDate)
	if err != nil {
		return budget.Transaction{}, err
	}

	t := budget.Transaction{
		TransactionNumber: req.TransactionNumber,
		FundID:            req.FundID,
		ParticularID:      req.ParticularID,
		TransactionType:   budget.TransactionType(req.TransactionType),
		Description:       req.Description,
		Payee:             req.Payee,
		Amount:            amount,
		PRNumber:          req.PRNumber,
		PONumber:          req.PONumber,
		DVNumber:          req.DVNumber,
		CheckNumber:       req.CheckNumber,
		CheckDate:         checkDate,
		Remarks:           req.Remarks,
	}
	if txDate != nil {
		t.TransactionDate = *txDate
	}
	return t, nil
}
