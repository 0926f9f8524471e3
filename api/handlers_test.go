/*
handlers_test.go - HTTP-level tests for the REST surface

Tests for:
- Fund creation and retrieval through the router
- Domain error to HTTP status mapping
- The transaction approval flow over HTTP
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/allocation"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/notify"
	"github.com/warp/budget-engine/report"
	"github.com/warp/budget-engine/sequence"
	"github.com/warp/budget-engine/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := notify.NewHub()
	t.Cleanup(hub.Close)

	seq := sequence.New(store)
	alloc := allocation.New(store, seq, hub)
	led := ledger.New(store, alloc, seq, hub)
	reports := report.New(store, hub)

	srv := httptest.NewServer(NewRouter(NewHandler(alloc, led, reports), nil))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "treasurer")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createFund(t *testing.T, srv *httptest.Server, allocated string) FundDTO {
	t.Helper()
	var fund FundDTO
	code := doJSON(t, http.MethodPost, srv.URL+"/api/funds", FundRequest{
		FundName:        "Operations",
		Category:        "MOOE",
		AllocatedAmount: allocated,
		FiscalYear:      2025,
	}, &fund)
	require.Equal(t, http.StatusCreated, code)
	return fund
}

func TestFunds_CreateAndGet(t *testing.T) {
	srv := newTestServer(t)

	fund := createFund(t, srv, "800000")
	assert.Equal(t, "MOOE-2025-001", fund.FundCode)
	assert.Equal(t, "800000.00", fund.AllocatedAmount)
	assert.Equal(t, "0.00", fund.UtilizedAmount)

	var got FundDTO
	code := doJSON(t, http.MethodGet, srv.URL+"/api/funds/"+fund.ID, nil, &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, fund.FundCode, got.FundCode)
}

func TestFunds_ValidationMapsTo400(t *testing.T) {
	srv := newTestServer(t)

	code := doJSON(t, http.MethodPost, srv.URL+"/api/funds", FundRequest{
		FundName:        "", // required
		Category:        "MOOE",
		AllocatedAmount: "1000",
		FiscalYear:      2025,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, http.MethodPost, srv.URL+"/api/funds", FundRequest{
		FundName:        "Bad amount",
		Category:        "MOOE",
		AllocatedAmount: "not-a-number",
		FiscalYear:      2025,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFunds_UnknownMapsTo404(t *testing.T) {
	srv := newTestServer(t)
	code := doJSON(t, http.MethodGet, srv.URL+"/api/funds/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTransactions_ApprovalFlowOverHTTP(t *testing.T) {
	// GIVEN: An 800k fund
	// WHEN: A 50k expenditure is created, submitted, and approved over HTTP
	// THEN: The fund's utilization reflects the committed amount

	srv := newTestServer(t)
	fund := createFund(t, srv, "800000")

	var tx TransactionDTO
	code := doJSON(t, http.MethodPost, srv.URL+"/api/transactions", TransactionRequest{
		FundID:          fund.ID,
		TransactionType: "Expenditure",
		Description:     "office supplies",
		Amount:          "50000",
		TransactionDate: "2025-03-10",
	}, &tx)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Pending", tx.Status)
	assert.NotEmpty(t, tx.TransactionNumber)

	statusURL := fmt.Sprintf("%s/api/transactions/%s/status", srv.URL, tx.ID)
	code = doJSON(t, http.MethodPost, statusURL, StatusRequest{Status: "For Approval"}, &tx)
	require.Equal(t, http.StatusOK, code)
	code = doJSON(t, http.MethodPost, statusURL, StatusRequest{Status: "Approved"}, &tx)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "treasurer", tx.ApprovedBy)

	var got FundDTO
	code = doJSON(t, http.MethodGet, srv.URL+"/api/funds/"+fund.ID, nil, &got)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "50000.00", got.UtilizedAmount)
	assert.Equal(t, "750000.00", got.RemainingBalance)
}

func TestTransactions_IllegalTransitionMapsTo409(t *testing.T) {
	srv := newTestServer(t)
	fund := createFund(t, srv, "800000")

	var tx TransactionDTO
	code := doJSON(t, http.MethodPost, srv.URL+"/api/transactions", TransactionRequest{
		FundID:          fund.ID,
		TransactionType: "Expenditure",
		Description:     "office supplies",
		Amount:          "100",
	}, &tx)
	require.Equal(t, http.StatusCreated, code)

	statusURL := fmt.Sprintf("%s/api/transactions/%s/status", srv.URL, tx.ID)
	code = doJSON(t, http.MethodPost, statusURL, StatusRequest{Status: "Completed"}, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestTransactions_InsufficientBalanceMapsTo400(t *testing.T) {
	srv := newTestServer(t)
	fund := createFund(t, srv, "100")

	var body ErrorResponse
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(TransactionRequest{
		FundID:          fund.ID,
		TransactionType: "Expenditure",
		Description:     "too big",
		Amount:          "500",
	}))
	resp, err := http.Post(srv.URL+"/api/transactions", "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Insufficient balance", body.Error)
	assert.Contains(t, body.Details, "available 100.00")
}

func TestReports_GenerateOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	createFund(t, srv, "800000")

	var r ReportDTO
	code := doJSON(t, http.MethodPost, srv.URL+"/api/reports/generate", GenerateReportRequest{
		ReportType: "Annual",
		FiscalYear: 2025,
	}, &r)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Generated", r.Status)
	assert.Equal(t, "800000.00", r.TotalAppropriation)
	assert.Equal(t, "800000.00", r.UnobligatedBalance)
}
