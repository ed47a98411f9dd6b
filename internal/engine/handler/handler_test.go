package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"heirloom/internal/engine"
	"heirloom/internal/jwtauth"
	"heirloom/internal/platform/middleware"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

type stubActivator struct {
	outcome *engine.UserOutcome
	err     error
	calls   int
}

func (s *stubActivator) TriggerManually(_ context.Context, userID id.UserID) (*engine.UserOutcome, error) {
	s.calls++
	return s.result(userID)
}

func (s *stubActivator) RecordDeathClaim(_ context.Context, userID id.UserID) (*engine.UserOutcome, error) {
	s.calls++
	return s.result(userID)
}

func (s *stubActivator) Verify(_ context.Context, userID id.UserID) (*engine.UserOutcome, error) {
	s.calls++
	return s.result(userID)
}

func (s *stubActivator) result(userID id.UserID) (*engine.UserOutcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.outcome != nil {
		return s.outcome, nil
	}
	return &engine.UserOutcome{UserID: userID, Triggered: 1}, nil
}

type stubRunner struct {
	summary *engine.RunSummary
	err     error
}

func (s *stubRunner) RunOnce(context.Context) (*engine.RunSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

type HandlerSuite struct {
	suite.Suite
	router    http.Handler
	activator *stubActivator
	runner    *stubRunner
	jwt       *jwtauth.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.activator = &stubActivator{}
	s.runner = &stubRunner{summary: &engine.RunSummary{Success: true, TriggeredCount: 2, TotalUsers: 5}}
	s.jwt = jwtauth.NewService("test-signing-key", "heirloom", "heirloom-operators")

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(s.activator, s.runner, logger)

	r := chi.NewRouter()
	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.jwt, logger))
		h.RegisterProtected(r)
	})
	s.router = r
}

func (s *HandlerSuite) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) operatorToken() string {
	token, err := s.jwt.GenerateToken("operator-1", time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) TestRun() {
	rec := s.do(http.MethodPost, "/inheritance/run", "")
	s.Equal(http.StatusOK, rec.Code)

	var summary engine.RunSummary
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &summary))
	s.True(summary.Success)
	s.Equal(2, summary.TriggeredCount)

	// Scheduler-facing contract keys.
	var raw map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"success", "message", "triggeredCount", "totalUsers", "timestamp"} {
		s.Contains(raw, key)
	}
}

func (s *HandlerSuite) TestRunFailure() {
	s.runner.err = errors.New("database down")
	rec := s.do(http.MethodPost, "/inheritance/run", "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "database down", "internal details must not leak")
}

func (s *HandlerSuite) TestTriggerRequiresAuth() {
	rec := s.do(http.MethodPost, "/inheritance/trigger/"+id.NewUserID().String(), "")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Zero(s.activator.calls)
}

func (s *HandlerSuite) TestTriggerRejectsBadToken() {
	rec := s.do(http.MethodPost, "/inheritance/trigger/"+id.NewUserID().String(), "not-a-token")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Zero(s.activator.calls)
}

func (s *HandlerSuite) TestTriggerWithToken() {
	rec := s.do(http.MethodPost, "/inheritance/trigger/"+id.NewUserID().String(), s.operatorToken())
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(1, s.activator.calls)

	var resp OutcomeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(1, resp.Triggered)
}

func (s *HandlerSuite) TestTriggerInvalidUserID() {
	rec := s.do(http.MethodPost, "/inheritance/trigger/not-a-uuid", s.operatorToken())
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Zero(s.activator.calls)
}

func (s *HandlerSuite) TestTriggerUnknownUser() {
	s.activator.err = sentinel.ErrNotFound
	rec := s.do(http.MethodPost, "/inheritance/trigger/"+id.NewUserID().String(), s.operatorToken())
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestClaimIsUnauthenticated() {
	s.activator.outcome = &engine.UserOutcome{Awaiting: 1}
	rec := s.do(http.MethodPost, "/inheritance/claim/"+id.NewUserID().String(), "")
	s.Equal(http.StatusAccepted, rec.Code)

	var resp OutcomeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(1, resp.Awaiting)
}

func (s *HandlerSuite) TestVerifyWithoutClaim() {
	s.activator.err = sentinel.ErrInvalidState
	rec := s.do(http.MethodPost, "/inheritance/verify/"+id.NewUserID().String(), s.operatorToken())
	s.Equal(http.StatusConflict, rec.Code)
}
