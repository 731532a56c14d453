//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mailhook/internal/registry/models"
	"mailhook/pkg/sentinel"
	"mailhook/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *Postgres
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())

	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	s.Require().NoError(err)
	s.pg.Apply(s.T(), string(schema))

	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.pg.DB.Exec("TRUNCATE domains")
	s.Require().NoError(err)
}

func (s *PostgresSuite) newRecord(domain string) *models.DomainRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.DomainRecord{
		Domain:            domain,
		Status:            models.StatusPending,
		VerificationToken: "tok-" + domain,
		DKIMTokens:        []string{"a", "b", "c"},
		WebhookURL:        "https://hooks.example.net/in",
		OwningEnvironment: "production",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *PostgresSuite) TestCreateAndGet() {
	record := s.newRecord("example.com")
	record.Function = &models.FunctionRef{
		CodeRef:     "fn-example-com",
		InvokeURL:   "https://fn-example-com.acme.workers.dev",
		Environment: "production",
		Enabled:     true,
	}
	s.Require().NoError(s.store.Create(s.ctx, record))

	got, err := s.store.Get(s.ctx, "example.com")
	s.Require().NoError(err)
	s.Equal(record.Domain, got.Domain)
	s.Equal(record.Status, got.Status)
	s.Equal(record.VerificationToken, got.VerificationToken)
	s.Equal(record.DKIMTokens, got.DKIMTokens)
	s.Equal(record.WebhookURL, got.WebhookURL)
	s.Require().NotNil(got.Function)
	s.True(got.Function.Enabled)
	s.Equal("production", got.OwningEnvironment)
}

func (s *PostgresSuite) TestCreateDuplicate() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("example.com")))

	err := s.store.Create(s.ctx, s.newRecord("example.com"))
	s.Require().ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *PostgresSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "missing.example")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestUpdate() {
	record := s.newRecord("example.com")
	s.Require().NoError(s.store.Create(s.ctx, record))

	record.Status = models.StatusVerified
	record.WebhookURL = "https://new.example.net/in"
	record.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Update(s.ctx, record))

	got, err := s.store.Get(s.ctx, "example.com")
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, got.Status)
	s.Equal("https://new.example.net/in", got.WebhookURL)
}

func (s *PostgresSuite) TestUpdateMissing() {
	err := s.store.Update(s.ctx, s.newRecord("missing.example"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestDelete() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("example.com")))
	s.Require().NoError(s.store.Delete(s.ctx, "example.com"))

	_, err := s.store.Get(s.ctx, "example.com")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().ErrorIs(s.store.Delete(s.ctx, "example.com"), sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestListSorted() {
	for _, domain := range []string{"b.example", "a.example", "c.example"} {
		s.Require().NoError(s.store.Create(s.ctx, s.newRecord(domain)))
	}

	records, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal("a.example", records[0].Domain)
	s.Equal("b.example", records[1].Domain)
	s.Equal("c.example", records[2].Domain)
}
