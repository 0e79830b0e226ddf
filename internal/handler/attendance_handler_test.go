package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/TekMoral/greenfield-portal-api/internal/dto"
	"github.com/TekMoral/greenfield-portal-api/internal/models"
	"github.com/TekMoral/greenfield-portal-api/internal/service"
)

type stubAttendanceService struct {
	markErr    error
	markResult dto.AttendanceResponse
	bulkResult dto.BulkMarkResponse
	lastActor  models.Actor
}

func (s *stubAttendanceService) Mark(ctx context.Context, actor models.Actor, req dto.MarkAttendanceRequest) (dto.AttendanceResponse, error) {
	s.lastActor = actor
	if !actor.Resolved() {
		return dto.AttendanceResponse{}, service.ErrUnauthenticated
	}
	if s.markErr != nil {
		return dto.AttendanceResponse{}, s.markErr
	}
	return s.markResult, nil
}

func (s *stubAttendanceService) BulkMark(ctx context.Context, actor models.Actor, req dto.BulkMarkAttendanceRequest) (dto.BulkMarkResponse, error) {
	s.lastActor = actor
	if !actor.Resolved() {
		return dto.BulkMarkResponse{}, service.ErrUnauthenticated
	}
	return s.bulkResult, nil
}

func (s *stubAttendanceService) GetByDate(ctx context.Context, actor models.Actor, req dto.AttendanceByDateRequest) ([]dto.AttendanceResponse, error) {
	return nil, nil
}

func (s *stubAttendanceService) GetStudentAttendance(ctx context.Context, actor models.Actor, req dto.StudentAttendanceRequest) ([]dto.AttendanceResponse, error) {
	return nil, nil
}

func (s *stubAttendanceService) GetStudentStats(ctx context.Context, actor models.Actor, req dto.StudentAttendanceRequest) (dto.AttendanceStatsResponse, error) {
	return dto.AttendanceStatsResponse{}, nil
}

func (s *stubAttendanceService) GetClassSummary(ctx context.Context, actor models.Actor, req dto.ClassSummaryRequest) (dto.AttendanceStatsResponse, error) {
	return dto.AttendanceStatsResponse{}, nil
}

func newAttendanceTestApp(stub *stubAttendanceService, actor *models.Actor) *fiber.App {
	app := fiber.New()
	if actor != nil {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("user_id", actor.ID)
			c.Locals("user_role", string(actor.Role))
			return c.Next()
		})
	}
	h := NewAttendanceHandler(stub, zerolog.Nop())
	h.Register(app.Group("/attendance"))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestMarkAttendanceUnauthenticatedReturns401(t *testing.T) {
	stub := &stubAttendanceService{}
	app := newAttendanceTestApp(stub, nil)

	resp := postJSON(t, app, "/attendance", dto.MarkAttendanceRequest{})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMarkAttendanceFinalizationConflictReturns409(t *testing.T) {
	stub := &stubAttendanceService{markErr: service.ErrFinalizationConflict}
	actor := models.Actor{ID: 7, Role: models.RoleTeacher}
	app := newAttendanceTestApp(stub, &actor)

	resp := postJSON(t, app, "/attendance", dto.MarkAttendanceRequest{})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestMarkAttendanceValidationReturns400(t *testing.T) {
	stub := &stubAttendanceService{markErr: &service.ValidationError{MissingFields: []string{"student_id", "status"}}}
	actor := models.Actor{ID: 7, Role: models.RoleTeacher}
	app := newAttendanceTestApp(stub, &actor)

	resp := postJSON(t, app, "/attendance", dto.MarkAttendanceRequest{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.False(t, payload.Success)
	require.Contains(t, payload.Message, "student_id")
	require.Contains(t, payload.Message, "status")
}

func TestMarkAttendanceNormalizesSuperAdminRole(t *testing.T) {
	stub := &stubAttendanceService{}
	actor := models.Actor{ID: 9, Role: "super_admin"}
	app := newAttendanceTestApp(stub, &actor)

	resp := postJSON(t, app, "/attendance", dto.MarkAttendanceRequest{})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, models.RoleAdmin, stub.lastActor.Role)
}

func TestBulkMarkAttendanceReportsPartialSuccess(t *testing.T) {
	stub := &stubAttendanceService{bulkResult: dto.BulkMarkResponse{
		Applied: []dto.AttendanceResponse{{ID: 1}, {ID: 2}, {ID: 3}},
		Skipped: []models.SkippedRecord{{Reason: "finalized"}},
		Invalid: []models.InvalidRecord{{Index: 1, Error: "missing required fields: status"}},
	}}
	actor := models.Actor{ID: 7, Role: models.RoleTeacher}
	app := newAttendanceTestApp(stub, &actor)

	resp := postJSON(t, app, "/attendance/bulk", dto.BulkMarkAttendanceRequest{})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                 `json:"success"`
		Message string               `json:"message"`
		Data    dto.BulkMarkResponse `json:"data"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Success, "partial success is not an error state")
	require.Contains(t, payload.Message, "3 applied")
	require.Contains(t, payload.Message, "1 skipped")
	require.Contains(t, payload.Message, "1 invalid")
	require.Len(t, payload.Data.Applied, 3)
}
