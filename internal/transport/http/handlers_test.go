package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"erasure/internal/account"
	"erasure/internal/audit"
	"erasure/internal/deletion"
	deletionsvc "erasure/internal/deletion/service"
	jwttoken "erasure/internal/jwt_token"
	"erasure/internal/monitor"
	"erasure/internal/report"
	"erasure/pkg/platform/tx"
)

type TransportSuite struct {
	suite.Suite

	accounts *account.MemoryStore
	requests *deletion.MemoryStore
	auditLog *audit.MemoryStore
	alerts   *monitor.MemoryAlertStore

	deletionSvc *deletionsvc.Service
	jwt         *jwttoken.Service
	router      chi.Router
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)

	s.accounts = account.NewMemoryStore()
	s.requests = deletion.NewMemoryStore()
	s.auditLog = audit.NewMemoryStore()
	s.alerts = monitor.NewMemoryAlertStore()

	recorder := audit.NewRecorder(s.auditLog, audit.WithLogger(logger))
	s.deletionSvc = deletionsvc.NewService(s.requests, s.accounts, recorder, tx.NewMutexRunner(),
		deletionsvc.WithLogger(logger))
	monitorSvc := monitor.NewService(s.alerts, s.auditLog, s.requests, recorder,
		monitor.WithLogger(logger))
	reportSvc := report.NewService(s.requests, s.accounts, recorder,
		report.WithLogger(logger))

	s.jwt = jwttoken.NewService("test-signing-key", "erasure", "erasure-admin")
	s.router = NewRouter(Deps{
		Deletion:  s.deletionSvc,
		Monitor:   monitorSvc,
		Reports:   reportSvc,
		Validator: jwttoken.NewAdapter(s.jwt),
		Logger:    logger,
	})
}

func (s *TransportSuite) token(userID uuid.UUID, role string) string {
	token, err := s.jwt.GenerateAccessToken(userID, uuid.New(), role, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *TransportSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *TransportSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (s *TransportSuite) seedUser(role account.Role) uuid.UUID {
	id := uuid.New()
	s.accounts.PutUser(&account.User{
		ID:        id,
		Email:     "user@example.org",
		Name:      "Test User",
		Role:      role,
		CreatedAt: time.Now().AddDate(-2, 0, 0),
	})
	return id
}

func (s *TransportSuite) seedMinor() uuid.UUID {
	id := s.seedUser(account.RoleStudent)
	dob := time.Now().AddDate(-10, 0, 0)
	s.accounts.PutProfile(&account.Profile{UserID: id, DateOfBirth: &dob})
	return id
}

func (s *TransportSuite) activeRequest(userID uuid.UUID) *deletion.Request {
	req, err := s.requests.GetActiveByUser(context.Background(), userID)
	s.Require().NoError(err)
	return req
}

func (s *TransportSuite) TestHealthz() {
	w := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ok", s.decode(w)["status"])
}

func (s *TransportSuite) TestInitiateRequiresAuth() {
	w := s.do(http.MethodPost, "/deletion/requests", "", map[string]any{})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *TransportSuite) TestInitiateAndConfirmFlow() {
	userID := s.seedUser(account.RoleStudent)
	token := s.token(userID, "STUDENT")

	w := s.do(http.MethodPost, "/deletion/requests", token, map[string]any{
		"reason": "leaving the platform",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	body := s.decode(w)
	s.Equal("pending", body["status"])
	s.NotEmpty(body["nextSteps"])

	finalToken := s.activeRequest(userID).FinalConfirmationToken
	s.Require().NotEmpty(finalToken)

	w = s.do(http.MethodPost, "/deletion/confirm/"+finalToken, "", map[string]any{})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("confirmed", s.decode(w)["status"])
}

func (s *TransportSuite) TestInitiateForAnotherUserForbidden() {
	userID := s.seedUser(account.RoleStudent)
	other := s.seedUser(account.RoleStudent)

	w := s.do(http.MethodPost, "/deletion/requests", s.token(userID, "STUDENT"), map[string]any{
		"userId": other.String(),
	})
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *TransportSuite) TestAdminInitiatesForUser() {
	adminID := s.seedUser(account.RoleAdmin)
	target := s.seedUser(account.RoleStudent)

	w := s.do(http.MethodPost, "/deletion/requests", s.token(adminID, "ADMIN"), map[string]any{
		"userId": target.String(),
		"reason": "account compromise",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	req := s.activeRequest(target)
	s.Equal(deletion.SourceAdmin, req.Source)
}

func (s *TransportSuite) TestStatusEndpoint() {
	userID := s.seedUser(account.RoleStudent)
	other := s.seedUser(account.RoleStudent)
	token := s.token(userID, "STUDENT")

	w := s.do(http.MethodGet, "/deletion/requests/"+userID.String()+"/status", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal("none", body["status"])
	s.Equal(true, body["canRequest"])

	w = s.do(http.MethodGet, "/deletion/requests/"+other.String()+"/status", token, nil)
	s.Equal(http.StatusForbidden, w.Code)

	adminID := s.seedUser(account.RoleAdmin)
	w = s.do(http.MethodGet, "/deletion/requests/"+other.String()+"/status", s.token(adminID, "ADMIN"), nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *TransportSuite) TestParentalConsentFlow() {
	minorID := s.seedMinor()

	w := s.do(http.MethodPost, "/deletion/requests", s.token(minorID, "STUDENT"), map[string]any{
		"reason": "parent request",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal("parental_consent_required", s.decode(w)["status"])

	parentToken := s.activeRequest(minorID).ParentConfirmationToken
	s.Require().NotEmpty(parentToken)

	// Granting without identifying the parent is rejected.
	w = s.do(http.MethodPost, "/deletion/consent/"+parentToken, "", map[string]any{
		"granted": true,
	})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/deletion/consent/"+parentToken, "", map[string]any{
		"granted":     true,
		"parentName":  "A Parent",
		"parentEmail": "parent@example.org",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("confirmed", s.decode(w)["status"])
}

func (s *TransportSuite) TestParentalConsentDenied() {
	minorID := s.seedMinor()
	s.do(http.MethodPost, "/deletion/requests", s.token(minorID, "STUDENT"), map[string]any{})
	parentToken := s.activeRequest(minorID).ParentConfirmationToken

	w := s.do(http.MethodPost, "/deletion/consent/"+parentToken, "", map[string]any{
		"granted": false,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("cancelled", s.decode(w)["status"])
}

func (s *TransportSuite) confirmedRequest(userID uuid.UUID) *deletion.Request {
	w := s.do(http.MethodPost, "/deletion/requests", s.token(userID, "STUDENT"), map[string]any{})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	req := s.activeRequest(userID)
	w = s.do(http.MethodPost, "/deletion/confirm/"+req.FinalConfirmationToken, "", map[string]any{})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	return s.activeRequest(userID)
}

func (s *TransportSuite) TestAdminDeletionLifecycle() {
	userID := s.seedUser(account.RoleStudent)
	req := s.confirmedRequest(userID)
	admin := s.token(s.seedUser(account.RoleAdmin), "ADMIN")

	// Admin routes reject non-admin tokens.
	w := s.do(http.MethodPost, "/admin/deletion/requests/"+req.ID.String()+"/soft-delete",
		s.token(userID, "STUDENT"), nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/admin/deletion/requests/"+req.ID.String()+"/soft-delete", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("soft_deleted", s.decode(w)["status"])

	w = s.do(http.MethodPost, "/admin/deletion/requests/"+req.ID.String()+"/hard-delete", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("hard_deleted", s.decode(w)["status"])

	// Replaying the hard delete conflicts with the terminal state.
	w = s.do(http.MethodPost, "/admin/deletion/requests/"+req.ID.String()+"/hard-delete", admin, nil)
	s.Equal(http.StatusConflict, w.Code)
}

func (s *TransportSuite) TestRecoverEndpoint() {
	userID := s.seedUser(account.RoleStudent)
	req := s.confirmedRequest(userID)
	admin := s.token(s.seedUser(account.RoleAdmin), "ADMIN")

	w := s.do(http.MethodPost, "/admin/deletion/requests/"+req.ID.String()+"/soft-delete", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/admin/users/"+userID.String()+"/recover", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("recovered", s.decode(w)["status"])
}

func (s *TransportSuite) TestCancelEndpoint() {
	userID := s.seedUser(account.RoleStudent)
	req := s.confirmedRequest(userID)
	admin := s.token(s.seedUser(account.RoleAdmin), "ADMIN")

	w := s.do(http.MethodPost, "/admin/deletion/requests/"+req.ID.String()+"/cancel", admin, map[string]any{
		"reason": "user changed their mind",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("cancelled", s.decode(w)["status"])
}

func (s *TransportSuite) TestApproveReviewEndpoint() {
	// TEACHER accounts with active classes route through review.
	teacherID := s.seedUser(account.RoleTeacher)
	s.accounts.SetActiveClasses(teacherID, 2)

	w := s.do(http.MethodPost, "/deletion/requests", s.token(teacherID, "TEACHER"), map[string]any{})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal("review_required", s.decode(w)["status"])

	req := s.activeRequest(teacherID)
	admin := s.token(s.seedUser(account.RoleAdmin), "ADMIN")
	w = s.do(http.MethodPost, "/admin/deletion/requests/"+req.ID.String()+"/review/approve", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("confirmed", s.decode(w)["status"])
}

func (s *TransportSuite) TestAlertEndpoints() {
	alert := &monitor.Alert{
		ID:          "multiple_deletion_requests_1",
		RuleID:      "multiple_deletion_requests",
		RuleName:    "Multiple Deletion Requests",
		Severity:    monitor.SeverityMedium,
		Title:       "Security Alert: Multiple Deletion Requests",
		TriggeredAt: time.Now(),
	}
	s.Require().NoError(s.alerts.Save(context.Background(), alert))

	admin := s.token(s.seedUser(account.RoleAdmin), "ADMIN")
	w := s.do(http.MethodGet, "/admin/alerts", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(float64(1), s.decode(w)["count"])

	w = s.do(http.MethodPost, "/admin/alerts/"+alert.ID+"/resolve", admin, map[string]any{
		"notes": "reviewed, benign",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(true, s.decode(w)["resolved"])

	w = s.do(http.MethodPost, "/admin/alerts/"+alert.ID+"/resolve", admin, map[string]any{})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/admin/alerts/absent/resolve", admin, map[string]any{})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *TransportSuite) TestReportEndpoint() {
	admin := s.token(s.seedUser(account.RoleAdmin), "ADMIN")

	w := s.do(http.MethodGet, "/admin/reports?type=WEEKLY", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("application/json", w.Header().Get("Content-Type"))
	s.Equal("WEEKLY", s.decode(w)["reportType"])

	w = s.do(http.MethodGet, "/admin/reports?type=WEEKLY&format=CSV", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("text/csv", w.Header().Get("Content-Type"))
	s.Contains(w.Body.String(), "Total Deletion Requests")

	w = s.do(http.MethodGet, "/admin/reports?type=WEEKLY&format=PDF", admin, nil)
	s.Equal(http.StatusNotImplemented, w.Code)

	w = s.do(http.MethodGet, "/admin/reports?type=HOURLY", admin, nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *TransportSuite) TestStatisticsEndpoint() {
	userID := s.seedUser(account.RoleStudent)
	s.do(http.MethodPost, "/deletion/requests", s.token(userID, "STUDENT"), map[string]any{})

	admin := s.token(s.seedUser(account.RoleAdmin), "ADMIN")
	w := s.do(http.MethodGet, "/admin/deletion/statistics", admin, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(float64(1), s.decode(w)["totalRequests"])
}
