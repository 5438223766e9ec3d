package handler_test

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baseproof/internal/certificate/fees"
	"baseproof/internal/certificate/handler"
	"baseproof/internal/certificate/models"
	"baseproof/internal/certificate/service"
	"baseproof/internal/certificate/store"
	"baseproof/internal/events"
	"baseproof/internal/jwtauth"
	"baseproof/internal/platform/middleware"
	domain "baseproof/pkg/domain"
	"baseproof/pkg/testutil"
)

const (
	singleFee   = domain.Amount(1_000_000_000_000_000)
	transferFee = domain.Amount(500_000_000_000_000)
)

var (
	alice = domain.MustParseAddress("0x1111111111111111111111111111111111111111")
	bob   = domain.MustParseAddress("0x2222222222222222222222222222222222222222")
)

type env struct {
	router http.Handler
	tokens *jwtauth.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(
		store.NewMemoryStore(100),
		events.NewPublisher(events.NewMemorySink()),
		fees.NewPolicy(singleFee, transferFee, fees.DefaultTiers()),
		nil,
		nil,
		service.Config{RevocationCooldown: 30 * 24 * time.Hour, MaxBulkSize: 100, MaxPageSize: 100},
		log,
	)
	tokens := jwtauth.New("test-signing-key", "baseproof", "baseproof-api")

	r := chi.NewRouter()
	r.Use(middleware.RequestTime)
	r.Mount("/v1", handler.New(svc, log).Routes(
		middleware.RequireAuth(tokens, log),
		middleware.OptionalAuth(tokens),
	))
	return &env{router: r, tokens: tokens}
}

func (e *env) do(t *testing.T, req *http.Request, actor domain.Address) *httptest.ResponseRecorder {
	t.Helper()
	if !actor.IsZero() {
		token, err := e.tokens.GenerateAccessToken(actor, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func certifyBody(seed string, public bool) map[string]any {
	return map[string]any{
		"document_hash": domain.HashBytes([]byte(seed)).String(),
		"title":         "Document " + seed,
		"category":      0,
		"is_public":     public,
		"payment":       uint64(singleFee),
	}
}

func TestCertifyEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", certifyBody("deed", true)), alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	cert := testutil.DecodeJSON[models.Certificate](t, rec)
	assert.Equal(t, domain.CertificateID(1), cert.ID)
	assert.Equal(t, alice, cert.Issuer)
	assert.Equal(t, alice, cert.Owner)
}

func TestCertifyRequiresAuth(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", certifyBody("deed", true)), domain.ZeroAddress)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := testutil.DecodeJSON[map[string]string](t, rec)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestCertifyErrorEnvelope(t *testing.T) {
	e := newEnv(t)

	body := certifyBody("deed", true)
	body["payment"] = uint64(singleFee) - 1
	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", body), alice)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	resp := testutil.DecodeJSON[map[string]string](t, rec)
	assert.Equal(t, "invalid_fee", resp["error"])
	assert.NotEmpty(t, resp["message"])
}

func TestCertifyRejectsMalformedHash(t *testing.T) {
	e := newEnv(t)

	body := certifyBody("deed", true)
	body["document_hash"] = "not-a-hash"
	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", body), alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkEndpoint(t *testing.T) {
	e := newEnv(t)

	items := make([]map[string]any, 0, 10)
	for i := 0; i < 10; i++ {
		item := certifyBody(fmt.Sprintf("bulk-%d", i), true)
		delete(item, "payment")
		items = append(items, item)
	}
	discounted := uint64(singleFee) * 10 * 90 / 100

	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates/bulk", map[string]any{
		"items":   items,
		"payment": discounted,
	}), alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := testutil.DecodeJSON[struct {
		CertificateIDs []domain.CertificateID `json:"certificate_ids"`
		Count          int                    `json:"count"`
	}](t, rec)
	assert.Equal(t, 10, resp.Count)
	assert.Len(t, resp.CertificateIDs, 10)
}

func TestGetRedactsForAnonymous(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", certifyBody("secret", false)), alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/v1/certificates/1", nil), domain.ZeroAddress)
	require.Equal(t, http.StatusOK, rec.Code, "redaction is a 200, not an error")

	cert := testutil.DecodeJSON[models.Certificate](t, rec)
	assert.Equal(t, domain.CertificateID(1), cert.ID)
	assert.Empty(t, cert.Title)
	assert.True(t, cert.Issuer.IsZero())

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/v1/certificates/1", nil), alice)
	require.Equal(t, http.StatusOK, rec.Code)
	cert = testutil.DecodeJSON[models.Certificate](t, rec)
	assert.Equal(t, "Document secret", cert.Title)
}

func TestGetUnknownAndMalformedID(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/certificates/999", nil), domain.ZeroAddress)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/v1/certificates/zero", nil), domain.ZeroAddress)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", certifyBody("asset", true)), alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates/1/transfer", map[string]any{
		"new_owner": bob.String(),
		"payment":   uint64(transferFee),
	}), alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cert := testutil.DecodeJSON[models.Certificate](t, rec)
	assert.Equal(t, bob, cert.Owner)

	// Non-owner transfer is forbidden.
	rec = e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates/1/transfer", map[string]any{
		"new_owner": alice.String(),
		"payment":   uint64(transferFee),
	}), alice)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRevokeCooldownOverHTTP(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", certifyBody("doc", true)), alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates/1/revoke", map[string]any{
		"reason_ref": "ipfs://reason",
	}), alice)
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := testutil.DecodeJSON[map[string]string](t, rec)
	assert.Equal(t, "cooldown_not_met", resp["error"])
}

func TestVerifyEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", certifyBody("published", true)), alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	hash := domain.HashBytes([]byte("published")).String()
	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/v1/verify/"+hash, nil), domain.ZeroAddress)
	require.Equal(t, http.StatusOK, rec.Code)

	res := testutil.DecodeJSON[models.VerificationResult](t, rec)
	assert.True(t, res.Exists)
	assert.Equal(t, alice, res.Issuer)

	missing := domain.HashBytes([]byte("missing")).String()
	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/v1/verify/"+missing, nil), domain.ZeroAddress)
	require.Equal(t, http.StatusOK, rec.Code)
	res = testutil.DecodeJSON[models.VerificationResult](t, rec)
	assert.False(t, res.Exists)
}

func TestListAndStatsEndpoints(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 3; i++ {
		rec := e.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/certificates", certifyBody(fmt.Sprintf("s-%d", i), true)), alice)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/issuers/"+alice.String()+"/certificates?offset=1&limit=1", nil), domain.ZeroAddress)
	require.Equal(t, http.StatusOK, rec.Code)
	list := testutil.DecodeJSON[struct {
		CertificateIDs []domain.CertificateID `json:"certificate_ids"`
	}](t, rec)
	assert.Equal(t, []domain.CertificateID{2}, list.CertificateIDs)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/v1/stats/platform", nil), domain.ZeroAddress)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := testutil.DecodeJSON[models.PlatformStats](t, rec)
	assert.Equal(t, uint64(3), stats.TotalCertificates)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/v1/stats/issuers/"+alice.String(), nil), domain.ZeroAddress)
	require.Equal(t, http.StatusOK, rec.Code)
	istats := testutil.DecodeJSON[models.IssuerStats](t, rec)
	assert.Equal(t, uint64(3), istats.TotalIssued)
}
