package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"mailhook/internal/registry/models"
	"mailhook/internal/registry/service"
	"mailhook/internal/routing"
	dErrors "mailhook/pkg/domain-errors"
)

type fakeService struct {
	registered []string
	deleted    []string
	err        error
}

func (f *fakeService) Register(_ context.Context, domain, webhookURL string) (*service.Registration, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = append(f.registered, domain)
	return &service.Registration{DomainRecord: models.DomainRecord{
		Domain:     strings.ToLower(domain),
		Status:     models.StatusPending,
		WebhookURL: webhookURL,
	}}, nil
}

func (f *fakeService) Get(_ context.Context, domain string) (*service.Registration, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.Registration{DomainRecord: models.DomainRecord{Domain: domain, Status: models.StatusVerified}}, nil
}

func (f *fakeService) Update(_ context.Context, domain, webhookURL string) (*service.Registration, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.Registration{DomainRecord: models.DomainRecord{Domain: domain, WebhookURL: webhookURL}}, nil
}

func (f *fakeService) Delete(_ context.Context, domain string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, domain)
	return nil
}

func (f *fakeService) Resync(context.Context) (routing.ResyncResult, error) {
	if f.err != nil {
		return routing.ResyncResult{}, f.err
	}
	return routing.ResyncResult{DomainsCount: 2, Dropped: []string{"late.example"}}, nil
}

func newTestRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler)).Register(r)
	return r
}

func TestRegisterDomain(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/domain/example.com", strings.NewReader(`{"webhook":"https://hooks.example.net/in"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, []string{"example.com"}, svc.registered)
	require.Contains(t, rec.Body.String(), `"verification_status":"pending"`)
}

func TestRegisterDomainBadBody(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/domain/example.com", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDomainConflict(t *testing.T) {
	router := newTestRouter(&fakeService{err: dErrors.New(dErrors.CodeConflict, "domain is already registered")})

	req := httptest.NewRequest(http.MethodPost, "/v1/domain/example.com", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already registered")
}

func TestGetDomain(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/domain/example.com", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"verification_status":"verified"`)
}

func TestGetDomainNotFound(t *testing.T) {
	router := newTestRouter(&fakeService{err: dErrors.New(dErrors.CodeNotFound, "domain is not registered")})

	req := httptest.NewRequest(http.MethodGet, "/v1/domain/missing.example", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDomain(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPut, "/v1/domain/example.com", strings.NewReader(`{"webhook":"https://hooks.example.net/v2"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "https://hooks.example.net/v2")
}

func TestDeleteDomain(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/v1/domain/example.com", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"example.com"}, svc.deleted)
}

func TestDeleteDomainUpstreamFailure(t *testing.T) {
	router := newTestRouter(&fakeService{err: dErrors.New(dErrors.CodeUpstreamUnavailable, "failed to remove domain from routing rule")})

	req := httptest.NewRequest(http.MethodDelete, "/v1/domain/example.com", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestResync(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/domains/sync", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"domains_count":2`)
	require.Contains(t, rec.Body.String(), "late.example")
}

func TestInternalErrorOmitsDescription(t *testing.T) {
	router := newTestRouter(&fakeService{err: dErrors.New(dErrors.CodeInternal, "db exploded at 10.0.0.3")})

	req := httptest.NewRequest(http.MethodGet, "/v1/domain/example.com", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "10.0.0.3")
}
