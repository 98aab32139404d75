package invoices

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-trade/meridian/internal/shared"
)

func newTestServer(t *testing.T, ledger *fakeLedger) (*httptest.Server, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, &memDirectory{}, ledger, nil, nil, logger, testClock)
	handler := NewHandler(logger, svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.WithActor(r.Context(), testActor())))
		})
	})
	r.Route("/api/v1", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo
}

const createBody = `{
	"buyer": {"name": "Acme Interiors", "taxId": "BG123", "phone": "+359888123456"},
	"items": [{"productId": 1, "name": "Sofa", "qty": 2, "price": 300, "reservationDays": 14}],
	"payments": [{"amount": 100, "method": "cash"}]
}`

func TestHandlerCreateInvoice(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLedger(map[int64]float64{1: 10}))

	resp, err := http.Post(srv.URL+"/api/v1/invoices", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body InvoiceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "N25000001", body.InvoiceNumber)
	require.Equal(t, "standard", body.Status)
	require.Equal(t, "reserved", body.DisplayStatus)
	require.InDelta(t, 600.0, body.TotalAmount, 0.0001)
	require.Len(t, body.Items, 1)
	require.Equal(t, "reserved", body.Items[0].ItemStatus)
}

func TestHandlerCreateInsufficientStock(t *testing.T) {
	srv, repo := newTestServer(t, newFakeLedger(map[int64]float64{1: 1}))

	resp, err := http.Post(srv.URL+"/api/v1/invoices", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem struct {
		Title  string   `json:"title"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, "Insufficient Stock", problem.Title)
	require.Len(t, problem.Errors, 1)
	require.Contains(t, problem.Errors[0], "Sofa")
	require.Empty(t, repo.invoices)
}

func TestHandlerCreateRejectsMissingBuyer(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLedger(nil))

	body := `{"items": [{"name": "Sofa", "qty": 1, "price": 100}]}`
	resp, err := http.Post(srv.URL+"/api/v1/invoices", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerGetMissingInvoice(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLedger(nil))

	resp, err := http.Get(srv.URL + "/api/v1/invoices/99")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerToggleRejectsUnknownStatus(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLedger(nil))

	resp, err := http.Post(srv.URL+"/api/v1/invoices/1/toggle-status", "application/json",
		strings.NewReader(`{"status": "archived"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerNextNumber(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLedger(nil))

	resp, err := http.Get(srv.URL + "/api/v1/invoices/next-number")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "N25000001", body["invoiceNumber"])
}
