package functions

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mailhook/internal/registry/models"
	"mailhook/internal/registry/store"
	dErrors "mailhook/pkg/domain-errors"
	"mailhook/pkg/sentinel"
)

type fakePlatform struct {
	scripts     map[string]string
	deployments []string
	uploadErr   error
	deployErr   error
	deleteErr   error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{scripts: make(map[string]string)}
}

func (f *fakePlatform) UploadScript(_ context.Context, name, code string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if code == "" {
		code = defaultCode
	}
	f.scripts[name] = code
	return nil
}

func (f *fakePlatform) Deploy(_ context.Context, name, environment string) (string, error) {
	if f.deployErr != nil {
		return "", f.deployErr
	}
	f.deployments = append(f.deployments, name+":"+environment)
	return "dep-1", nil
}

func (f *fakePlatform) ScriptDetails(_ context.Context, name string) (*ScriptDetails, error) {
	if _, ok := f.scripts[name]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return &ScriptDetails{Name: name, ModifiedOn: time.Now()}, nil
}

func (f *fakePlatform) ScriptContent(_ context.Context, name string) (string, error) {
	code, ok := f.scripts[name]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return code, nil
}

func (f *fakePlatform) DeleteScript(_ context.Context, name string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.scripts, name)
	return nil
}

func (f *fakePlatform) InvokeURL(name string) string {
	return "https://" + name + ".acme.workers.dev"
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	domains  *store.Memory
	platform *fakePlatform
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.domains = store.NewMemory()
	s.platform = newFakePlatform()
	s.service = NewService(s.domains, s.platform, slog.New(slog.DiscardHandler))

	s.Require().NoError(s.domains.Create(s.ctx, &models.DomainRecord{
		Domain: "example.com",
		Status: models.StatusVerified,
	}))
}

func (s *ServiceSuite) TestPutCreatesFunction() {
	ref, created, err := s.service.Put(s.ctx, "example.com", PutRequest{
		Code:    "export default {}",
		Enabled: true,
	})
	s.Require().NoError(err)
	s.True(created)
	s.Equal("fn-example-com", ref.CodeRef)
	s.Equal("https://fn-example-com.acme.workers.dev", ref.InvokeURL)
	s.Equal("production", ref.Environment)
	s.True(ref.Enabled)
	s.Equal([]string{"fn-example-com:production"}, s.platform.deployments)

	record, err := s.domains.Get(s.ctx, "example.com")
	s.Require().NoError(err)
	s.Require().NotNil(record.Function)
	s.True(record.FunctionEnabled())
}

func (s *ServiceSuite) TestPutCreateWithoutCodeUsesDefault() {
	_, created, err := s.service.Put(s.ctx, "example.com", PutRequest{})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(defaultCode, s.platform.scripts["fn-example-com"])
}

func (s *ServiceSuite) TestPutUpdateRequiresCode() {
	_, _, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "v1"})
	s.Require().NoError(err)

	_, _, err = s.service.Put(s.ctx, "example.com", PutRequest{})
	s.Require().True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestPutUpdateRedeploys() {
	_, created, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "v1", Environment: "staging"})
	s.Require().NoError(err)
	s.True(created)

	ref, created, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "v2", Environment: "staging"})
	s.Require().NoError(err)
	s.False(created)
	s.Equal("staging", ref.Environment)
	s.Equal("v2", s.platform.scripts["fn-example-com"])
	s.Len(s.platform.deployments, 2)
}

func (s *ServiceSuite) TestPutUnknownDomain() {
	_, _, err := s.service.Put(s.ctx, "missing.example", PutRequest{Code: "x"})
	s.Require().True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestPutPlatformUnavailable() {
	s.platform.uploadErr = sentinel.ErrUnavailable

	_, _, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "x"})
	s.Require().True(dErrors.Is(err, dErrors.CodeUpstreamUnavailable))
}

func (s *ServiceSuite) TestGetReturnsLiveCode() {
	_, _, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "export default {}"})
	s.Require().NoError(err)

	info, err := s.service.Get(s.ctx, "example.com")
	s.Require().NoError(err)
	s.Equal("export default {}", info.Code)
	s.Require().NotNil(info.Details)
	s.Equal("fn-example-com", info.Details.Name)
}

func (s *ServiceSuite) TestGetWithoutFunction() {
	_, err := s.service.Get(s.ctx, "example.com")
	s.Require().True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestSetEnabled() {
	_, _, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "x", Enabled: true})
	s.Require().NoError(err)

	ref, err := s.service.SetEnabled(s.ctx, "example.com", false)
	s.Require().NoError(err)
	s.False(ref.Enabled)

	record, err := s.domains.Get(s.ctx, "example.com")
	s.Require().NoError(err)
	s.False(record.FunctionEnabled())
	s.NotNil(record.Function)
}

func (s *ServiceSuite) TestDelete() {
	_, _, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "x"})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ctx, "example.com"))

	record, err := s.domains.Get(s.ctx, "example.com")
	s.Require().NoError(err)
	s.Nil(record.Function)
	s.Empty(s.platform.scripts)
}

func (s *ServiceSuite) TestDeleteToleratesMissingScript() {
	_, _, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "x"})
	s.Require().NoError(err)
	delete(s.platform.scripts, "fn-example-com")
	s.platform.deleteErr = sentinel.ErrNotFound

	s.Require().NoError(s.service.Delete(s.ctx, "example.com"))
}

func (s *ServiceSuite) TestDeletePlatformFailure() {
	_, _, err := s.service.Put(s.ctx, "example.com", PutRequest{Code: "x"})
	s.Require().NoError(err)
	s.platform.deleteErr = errors.New("boom")

	err = s.service.Delete(s.ctx, "example.com")
	s.Require().Error(err)

	record, getErr := s.domains.Get(s.ctx, "example.com")
	s.Require().NoError(getErr)
	s.NotNil(record.Function)
}
