package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service) {
	svc := NewService(NewMemoryStore())
	return NewHandler(svc, "City Hospital"), svc
}

func TestHandler_Health(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body Health
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Status != "ok" || body.Hospital != "City Hospital" {
		t.Errorf("unexpected health body %+v", body)
	}
}

func TestHandler_CreatePatient(t *testing.T) {
	h, svc := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/patients", strings.NewReader(`{"name":"Reza Karimi","age":34}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(Patients)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["patient_id"] != float64(1) || body["status"] != "success" {
		t.Errorf("unexpected body %v", body)
	}

	rows, _ := svc.List(context.Background(), Patients, "")
	if len(rows) != 1 {
		t.Errorf("expected 1 stored row, got %d", len(rows))
	}
}

func TestHandler_CreateInvalid(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/patients", strings.NewReader(`{"name":"X","age":200}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Create(Patients)(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %T", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
}

func TestHandler_ListWithSearch(t *testing.T) {
	h, svc := newTestHandler()
	ctx := context.Background()
	svc.Create(ctx, Patients, &Patient{Name: "Ali Ahmadi"})
	svc.Create(ctx, Patients, &Patient{Name: "Sara Noori"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patients?search=sara", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(Patients)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &rows)
	if len(rows) != 1 || rows[0]["name"] != "Sara Noori" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestHandler_GetNotFound(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/doctors/:id")
	c.SetParamNames("id")
	c.SetParamValues("5")

	err := h.Get(Doctors)(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_InvalidID(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := h.Delete(Patients)(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_UpdateAndDelete(t *testing.T) {
	h, svc := newTestHandler()
	ctx := context.Background()
	id, _ := svc.Create(ctx, Doctors, &Doctor{Name: "Dr. Hamid Kazemi"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"Dr. Hamid Kazemi","specialization":"Cardiology"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := h.Update(Doctors)(c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	row, _ := svc.Get(ctx, Doctors, id)
	if row["specialization"] != "Cardiology" {
		t.Errorf("expected Cardiology, got %v", row["specialization"])
	}

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.Delete(Doctors)(c); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	h.RegisterRoutes(e)

	want := map[string]bool{
		"GET /health":              false,
		"POST /patients":           false,
		"GET /medical_records":     false,
		"DELETE /appointments/:id": false,
		"PUT /doctors/:id":         false,
		"GET /medical_records/:id": false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestHTTPError_Mapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrUnknownColumn, http.StatusBadRequest},
		{ValidationErrors{{Field: "name", Message: "is required"}}, http.StatusBadRequest},
		{&StorageError{Op: "insert", Table: "patients", Err: context.DeadlineExceeded}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		he, ok := HTTPError(tt.err).(*echo.HTTPError)
		if !ok || he.Code != tt.code {
			t.Errorf("HTTPError(%v): expected %d, got %v", tt.err, tt.code, he)
		}
	}
}
