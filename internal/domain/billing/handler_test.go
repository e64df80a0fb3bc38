package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/vetdesk/clinic/internal/platform/auth"
)

func asUser(req *http.Request, userID string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), userID, userID, roles))
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_ListTransactions_PatientScopedToSelf(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	ctx := context.Background()
	svc.RecordTransaction(ctx, sampleTxn("u1"))
	svc.RecordTransaction(ctx, sampleTxn("u2"))

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/transactions?user_id=u2", nil), "u1", auth.RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListTransactions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int            `json:"total"`
		Data  []*Transaction `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Data[0].UserID != "u1" {
		t.Errorf("patient should only see own transactions, got %+v", resp)
	}
}

func TestHandler_ListTransactions_StaffFilters(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	ctx := context.Background()
	svc.RecordTransaction(ctx, sampleTxn("u1"))
	svc.RecordTransaction(ctx, sampleTxn("u2"))

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/transactions?user_id=u2", nil), "staff", auth.RoleReceptionist)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListTransactions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1, got %d", resp.Total)
	}
}

func TestHandler_ListTransactions_BadStatus(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/transactions?status=Lost", nil), "admin", auth.RoleAdmin)
	c := e.NewContext(req, httptest.NewRecorder())
	if code := statusOf(t, h.ListTransactions(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetTransaction(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	txn := sampleTxn("u1")
	svc.RecordTransaction(context.Background(), txn)

	cases := []struct {
		name   string
		user   string
		role   string
		invoce string
		want   int
	}{
		{"owner", "u1", auth.RolePatient, txn.InvoiceID, http.StatusOK},
		{"other patient", "u2", auth.RolePatient, txn.InvoiceID, http.StatusNotFound},
		{"doctor", "d1", auth.RoleDoctor, txn.InvoiceID, http.StatusOK},
		{"missing", "u1", auth.RolePatient, "INV-0-deadbeef", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := asUser(httptest.NewRequest(http.MethodGet, "/", nil), tc.user, tc.role)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("invoiceId")
			c.SetParamValues(tc.invoce)

			err := h.GetTransaction(c)
			if tc.want == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if code := statusOf(t, err); code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, code)
			}
		})
	}
}
