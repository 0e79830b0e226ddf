package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/TekMoral/greenfield-portal-api/internal/dto"
	"github.com/TekMoral/greenfield-portal-api/internal/service"
	"github.com/TekMoral/greenfield-portal-api/internal/utils"
)

// AttendanceHandler manages attendance endpoints.
type AttendanceHandler struct {
	service service.AttendanceService
	logger  zerolog.Logger
}

// NewAttendanceHandler builds an attendance handler instance.
func NewAttendanceHandler(service service.AttendanceService, logger zerolog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
		logger:  logger.With().Str("component", "attendance_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *AttendanceHandler) Register(router fiber.Router) {
	router.Post("", h.mark)
	router.Post("/bulk", h.bulkMark)
	router.Get("", h.listByDate)
	router.Get("/student/:studentID", h.studentAttendance)
	router.Get("/student/:studentID/stats", h.studentStats)
	router.Get("/class/:classID/summary", h.classSummary)
}

func (h *AttendanceHandler) mark(c *fiber.Ctx) error {
	var payload dto.MarkAttendanceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	record, err := h.service.Mark(c.Context(), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attendance recorded", record)
}

func (h *AttendanceHandler) bulkMark(c *fiber.Ctx) error {
	var payload dto.BulkMarkAttendanceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.BulkMark(c.Context(), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	// Partial success is the expected shape here; callers render skipped and
	// invalid entries as per-row warnings.
	message := fmt.Sprintf("attendance processed: %d applied, %d skipped, %d invalid",
		len(result.Applied), len(result.Skipped), len(result.Invalid))

	return utils.SendSuccess(c, message, result)
}

func (h *AttendanceHandler) listByDate(c *fiber.Ctx) error {
	classID, err := parseQueryUint(c, "class_id")
	if err != nil || classID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "class_id is required")
	}

	req := dto.AttendanceByDateRequest{
		ClassID: *classID,
		Date:    c.Query("date"),
	}
	if subjectID, err := parseQueryUint(c, "subject_id"); err == nil && subjectID != nil {
		req.SubjectID = subjectID
	}

	records, err := h.service.GetByDate(c.Context(), actorFromContext(c), req)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attendance retrieved", records)
}

func (h *AttendanceHandler) studentAttendance(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "studentID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	req := dto.StudentAttendanceRequest{
		StudentID: studentID,
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}

	records, err := h.service.GetStudentAttendance(c.Context(), actorFromContext(c), req)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "student attendance retrieved", records)
}

func (h *AttendanceHandler) studentStats(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "studentID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	req := dto.StudentAttendanceRequest{
		StudentID: studentID,
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}

	stats, err := h.service.GetStudentStats(c.Context(), actorFromContext(c), req)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "student attendance stats retrieved", stats)
}

func (h *AttendanceHandler) classSummary(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	req := dto.ClassSummaryRequest{
		ClassID: classID,
		Date:    c.Query("date"),
	}

	summary, err := h.service.GetClassSummary(c.Context(), actorFromContext(c), req)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "class attendance summary retrieved", summary)
}

func (h *AttendanceHandler) handleError(c *fiber.Ctx, err error) error {
	var validationError *service.ValidationError
	var fieldErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	case errors.Is(err, service.ErrFinalizationConflict):
		return utils.SendError(c, fiber.StatusConflict, "record already finalized by an admin")
	case errors.As(err, &validationError):
		return utils.SendError(c, fiber.StatusBadRequest, validationError.Error())
	case errors.As(err, &fieldErrors):
		return utils.SendError(c, fiber.StatusBadRequest, fieldErrors.Error())
	case errors.Is(err, service.ErrStorage):
		requestLogger(h.logger, c).Error().Err(err).Msg("attendance storage fault")
		return utils.SendError(c, fiber.StatusInternalServerError, "storage fault")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
