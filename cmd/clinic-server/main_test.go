package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic/internal/config"
	"github.com/vetdesk/clinic/internal/domain/identity"
	"github.com/vetdesk/clinic/internal/platform/blobstore"
	"github.com/vetdesk/clinic/internal/platform/db"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubDoctors struct {
	identity.DoctorRepository
	created []*identity.Doctor
}

func (r *stubDoctors) Create(_ context.Context, d *identity.Doctor) error {
	d.ID = uuid.New()
	r.created = append(r.created, d)
	return nil
}

func testConfig(authMode string) *config.Config {
	return &config.Config{
		Env:              "test",
		AuthMode:         authMode,
		AuthSigningKey:   "test-secret",
		CORSOrigins:      []string{"http://localhost:5173"},
		BodyLimit:        "1M",
		BookingBodyLimit: "50M",
		BookingTimezone:  "UTC",
		PaymentMethod:    "Online",
		RateLimitRPS:     100,
		RateLimitBurst:   100,
	}
}

func testServer(t *testing.T, authMode string, ping error) http.Handler {
	t.Helper()
	st := &stores{driver: config.DriverPostgres, tx: db.NoTx{}, pinger: stubPinger{err: ping}}
	e, err := newServer(testConfig(authMode), zerolog.Nop(), st, blobstore.NewInMemoryBlobStore(), nil)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e
}

func TestServer_PublicEndpoints(t *testing.T) {
	h := testServer(t, "jwt", nil)

	for _, path := range []string{"/health", "/health/db", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestServer_MetricsExposeBookingCollectors(t *testing.T) {
	h := testServer(t, "jwt", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("expected runtime collectors in /metrics output")
	}
}

func TestServer_DBHealthUnavailable(t *testing.T) {
	h := testServer(t, "jwt", errors.New("connection refused"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestServer_APIRequiresToken(t *testing.T) {
	h := testServer(t, "jwt", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestServer_BookingRejectsOversizedBody(t *testing.T) {
	cfg := testConfig("development")
	cfg.BookingBodyLimit = "1K"
	st := &stores{driver: config.DriverPostgres, tx: db.NoTx{}, pinger: stubPinger{}}
	e, err := newServer(cfg, zerolog.Nop(), st, blobstore.NewInMemoryBlobStore(), nil)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	body := `{"medicalReport":"` + strings.Repeat("A", 4096) + `"}`
	req := httptest.NewRequest(http.MethodPost, bookingPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestNewServer_BadTimezone(t *testing.T) {
	cfg := testConfig("jwt")
	cfg.BookingTimezone = "Mars/Olympus"
	st := &stores{driver: config.DriverPostgres, tx: db.NoTx{}, pinger: stubPinger{}}
	if _, err := newServer(cfg, zerolog.Nop(), st, blobstore.NewInMemoryBlobStore(), nil); err == nil {
		t.Error("expected an error for an unknown timezone")
	}
}

func TestImportDoctors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doctors.json")
	content := `[
		{"name":"Dr. Mehta","speciality":"Veterinary","fee":500,"availability":["monday","Wed"]},
		{"name":"Dr. Rao","speciality":"Dermatology","fee":800}
	]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	doctors, err := readDoctors(path)
	if err != nil {
		t.Fatalf("readDoctors: %v", err)
	}
	repo := &stubDoctors{}
	n, err := importDoctors(context.Background(), identity.NewService(repo, nil), doctors)
	if err != nil || n != 2 {
		t.Fatalf("importDoctors: n=%d err=%v", n, err)
	}
	if got := repo.created[0].Availability; len(got) != 2 || got[0] != "Mon" || got[1] != "Wed" {
		t.Errorf("availability not normalized: %v", got)
	}
	if repo.created[1].Rating != identity.DefaultRating {
		t.Errorf("expected default rating, got %v", repo.created[1].Rating)
	}
}

func TestImportDoctors_StopsAtInvalid(t *testing.T) {
	repo := &stubDoctors{}
	doctors := []*identity.Doctor{
		{Name: "Dr. Mehta", Speciality: "Veterinary", Fee: 500},
		{Name: "", Speciality: "Veterinary"},
		{Name: "Dr. Rao", Speciality: "Dermatology"},
	}
	n, err := importDoctors(context.Background(), identity.NewService(repo, nil), doctors)
	if !errors.Is(err, identity.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if n != 1 || len(repo.created) != 1 {
		t.Errorf("expected 1 imported doctor, got n=%d created=%d", n, len(repo.created))
	}
}

func TestReadDoctors_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doctors.json")
	os.WriteFile(path, []byte(`{"name":"not an array"}`), 0o600)
	if _, err := readDoctors(path); err == nil {
		t.Error("expected a parse error")
	}
}
