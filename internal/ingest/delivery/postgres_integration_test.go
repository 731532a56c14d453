//go:build integration

package delivery

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"mailhook/pkg/sentinel"
	"mailhook/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())

	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	s.Require().NoError(err)
	s.pg.Apply(s.T(), string(schema))

	s.store = NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.Exec("TRUNCATE delivery_records")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestCreateAndGet() {
	record := &Record{MessageID: "msg-1", Domain: "example.com"}
	s.Require().NoError(s.store.Create(s.ctx, record))

	got, err := s.store.Get(s.ctx, "msg-1")
	s.Require().NoError(err)
	s.Equal("example.com", got.Domain)
	s.False(got.WebhookInvoked)
	s.Nil(got.WebhookStatusCode)
	s.False(got.CreatedAt.IsZero())
}

func (s *PostgresStoreSuite) TestCreateDuplicate() {
	s.Require().NoError(s.store.Create(s.ctx, &Record{MessageID: "msg-1"}))

	err := s.store.Create(s.ctx, &Record{MessageID: "msg-1"})
	s.Require().ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *PostgresStoreSuite) TestUpdateFullRecord() {
	s.Require().NoError(s.store.Create(s.ctx, &Record{MessageID: "msg-1"}))

	fnCode, whCode := 200, 204
	snapshot, _ := json.Marshal(map[string]string{"subject": "hi"})
	updated := &Record{
		MessageID:          "msg-1",
		Domain:             "example.com",
		FunctionInvoked:    true,
		FunctionStatusCode: &fnCode,
		FunctionResponse:   `{"subject":"rewritten"}`,
		WebhookInvoked:     true,
		WebhookStatusCode:  &whCode,
		WebhookResponse:    "ok",
		PayloadSnapshot:    snapshot,
	}
	s.Require().NoError(s.store.Update(s.ctx, updated))

	got, err := s.store.Get(s.ctx, "msg-1")
	s.Require().NoError(err)
	s.True(got.WebhookDelivered())
	s.Equal(200, *got.FunctionStatusCode)
	s.JSONEq(`{"subject":"hi"}`, string(got.PayloadSnapshot))
}

func (s *PostgresStoreSuite) TestUpdateMissing() {
	err := s.store.Update(s.ctx, &Record{MessageID: "missing"})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
