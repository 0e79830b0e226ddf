package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/TekMoral/greenfield-portal-api/internal/dto"
	"github.com/TekMoral/greenfield-portal-api/internal/models"
	"github.com/TekMoral/greenfield-portal-api/internal/observability"
	"github.com/TekMoral/greenfield-portal-api/internal/repository"
)

const dateLayout = "2006-01-02"

// ErrUnauthenticated indicates no resolvable actor for the call.
var ErrUnauthenticated = errors.New("no resolvable actor")

// ErrFinalizationConflict indicates a teacher attempted to write a record an
// admin has already sealed.
var ErrFinalizationConflict = errors.New("attendance record already finalized")

// ErrStorage indicates the underlying store rejected an operation.
var ErrStorage = errors.New("attendance storage fault")

// ValidationError reports every missing required field of a candidate, not
// just the first one.
type ValidationError struct {
	MissingFields []string
	Reason        string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "missing required fields: " + strings.Join(e.MissingFields, ", ")
}

// AttendanceService is the attendance ledger and finalization engine.
type AttendanceService interface {
	Mark(ctx context.Context, actor models.Actor, req dto.MarkAttendanceRequest) (dto.AttendanceResponse, error)
	BulkMark(ctx context.Context, actor models.Actor, req dto.BulkMarkAttendanceRequest) (dto.BulkMarkResponse, error)
	GetByDate(ctx context.Context, actor models.Actor, req dto.AttendanceByDateRequest) ([]dto.AttendanceResponse, error)
	GetStudentAttendance(ctx context.Context, actor models.Actor, req dto.StudentAttendanceRequest) ([]dto.AttendanceResponse, error)
	GetStudentStats(ctx context.Context, actor models.Actor, req dto.StudentAttendanceRequest) (dto.AttendanceStatsResponse, error)
	GetClassSummary(ctx context.Context, actor models.Actor, req dto.ClassSummaryRequest) (dto.AttendanceStatsResponse, error)
}

type attendanceService struct {
	records   repository.AttendanceRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance engine.
func NewAttendanceService(records repository.AttendanceRepository, cache *redis.Client, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) AttendanceService {
	return &attendanceService{
		records:   records,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger.With().Str("component", "attendance_service").Logger(),
		now:       time.Now,
	}
}

func (s *attendanceService) Mark(ctx context.Context, actor models.Actor, req dto.MarkAttendanceRequest) (dto.AttendanceResponse, error) {
	if !actor.Resolved() {
		return dto.AttendanceResponse{}, ErrUnauthenticated
	}

	candidate := req.Normalize()
	scope := candidate.Key().Scope().String()

	if err := validateCandidate(candidate, actor.IsTeacher()); err != nil {
		observability.AttendanceWrites().WithLabelValues(string(actor.Role), scope, "invalid").Inc()
		return dto.AttendanceResponse{}, err
	}

	// Admins write unconditionally; only teacher writes consult the lock.
	if actor.IsTeacher() && s.finalized(ctx, candidate.Key()) {
		observability.AttendanceWrites().WithLabelValues(string(actor.Role), scope, "conflict").Inc()
		return dto.AttendanceResponse{}, ErrFinalizationConflict
	}

	record := s.stamp(candidate, actor)
	written, err := s.records.UpsertScoped(ctx, record.Scope(), []models.AttendanceRecord{record})
	if err != nil {
		observability.AttendanceWrites().WithLabelValues(string(actor.Role), scope, "fault").Inc()
		s.logger.Error().Err(err).
			Uint("student_id", record.StudentID).
			Uint("class_id", record.ClassID).
			Msg("attendance upsert failed")
		return dto.AttendanceResponse{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	observability.AttendanceWrites().WithLabelValues(string(actor.Role), scope, "applied").Inc()
	s.logger.Info().
		Uint("student_id", record.StudentID).
		Uint("class_id", record.ClassID).
		Str("status", string(record.Status)).
		Bool("finalized", written[0].FinalizedByAdmin).
		Msg("attendance recorded")

	return dto.NewAttendanceResponse(written[0]), nil
}

func (s *attendanceService) BulkMark(ctx context.Context, actor models.Actor, req dto.BulkMarkAttendanceRequest) (dto.BulkMarkResponse, error) {
	if !actor.Resolved() {
		return dto.BulkMarkResponse{}, ErrUnauthenticated
	}

	result := dto.BulkMarkResponse{
		Applied: []dto.AttendanceResponse{},
		Skipped: []models.SkippedRecord{},
		Invalid: []models.InvalidRecord{},
	}

	// Validation and lock outcomes are accumulated per record; they never
	// abort the batch.
	groups := map[models.ConflictScope][]models.AttendanceRecord{}
	for index, item := range req.Records {
		candidate := item.Normalize()
		if req.Finalize {
			candidate.Finalize = true
		}

		if vErr := validateCandidate(candidate, actor.IsTeacher()); vErr != nil {
			result.Invalid = append(result.Invalid, models.InvalidRecord{Index: index, Error: vErr.Error(), Record: candidate})
			observability.BulkRecords().WithLabelValues("invalid").Inc()
			continue
		}

		if actor.IsTeacher() && s.finalized(ctx, candidate.Key()) {
			result.Skipped = append(result.Skipped, models.SkippedRecord{Record: candidate, Reason: "finalized"})
			observability.BulkRecords().WithLabelValues("skipped").Inc()
			continue
		}

		record := s.stamp(candidate, actor)
		groups[record.Scope()] = append(groups[record.Scope()], record)
	}

	// Each scope maps to its own conflict target and is dispatched separately.
	// Only a storage fault here aborts the call.
	for _, scope := range []models.ConflictScope{models.ScopeDaily, models.ScopeSubject} {
		batch := groups[scope]
		if len(batch) == 0 {
			continue
		}

		written, err := s.records.UpsertScoped(ctx, scope, batch)
		if err != nil {
			observability.BulkRecords().WithLabelValues("fault").Add(float64(len(batch)))
			s.logger.Error().Err(err).
				Str("scope", scope.String()).
				Int("records", len(batch)).
				Msg("bulk attendance upsert failed")
			return dto.BulkMarkResponse{}, fmt.Errorf("%w: %w", ErrStorage, err)
		}

		result.Applied = append(result.Applied, dto.NewAttendanceResponseSlice(written)...)
		observability.BulkRecords().WithLabelValues("applied").Add(float64(len(written)))
	}

	s.logger.Info().
		Int("applied", len(result.Applied)).
		Int("skipped", len(result.Skipped)).
		Int("invalid", len(result.Invalid)).
		Msg("bulk attendance processed")

	return result, nil
}

func (s *attendanceService) GetByDate(ctx context.Context, actor models.Actor, req dto.AttendanceByDateRequest) ([]dto.AttendanceResponse, error) {
	if !actor.Resolved() {
		return nil, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListByDate(ctx, req.ClassID, date.UTC(), req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return dto.NewAttendanceResponseSlice(records), nil
}

func (s *attendanceService) GetStudentAttendance(ctx context.Context, actor models.Actor, req dto.StudentAttendanceRequest) ([]dto.AttendanceResponse, error) {
	if !actor.Resolved() {
		return nil, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListByStudent(ctx, req.StudentID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return dto.NewAttendanceResponseSlice(records), nil
}

func (s *attendanceService) GetStudentStats(ctx context.Context, actor models.Actor, req dto.StudentAttendanceRequest) (dto.AttendanceStatsResponse, error) {
	if !actor.Resolved() {
		return dto.AttendanceStatsResponse{}, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.AttendanceStatsResponse{}, err
	}

	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return dto.AttendanceStatsResponse{}, err
	}

	tally, err := s.records.Tally(ctx, repository.AttendanceStatsFilter{
		StudentID: &req.StudentID,
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		return dto.AttendanceStatsResponse{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return statsResponse(tally), nil
}

func (s *attendanceService) GetClassSummary(ctx context.Context, actor models.Actor, req dto.ClassSummaryRequest) (dto.AttendanceStatsResponse, error) {
	if !actor.Resolved() {
		return dto.AttendanceStatsResponse{}, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.AttendanceStatsResponse{}, err
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return dto.AttendanceStatsResponse{}, err
	}
	day := date.UTC()

	cacheKey := fmt.Sprintf("attendance:summary:%d:%s", req.ClassID, req.Date)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.AttendanceStatsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("class_id", req.ClassID).Msg("class summary cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read class summary cache")
		}
	}

	tally, err := s.records.Tally(ctx, repository.AttendanceStatsFilter{
		ClassID: &req.ClassID,
		Date:    &day,
	})
	if err != nil {
		return dto.AttendanceStatsResponse{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	response := statsResponse(tally)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store class summary cache")
			}
		}
	}

	return response, nil
}

// finalized reports whether the row for key is sealed against teacher writes.
// Lookup errors other than not-found are treated as not finalized (fail-open):
// a blocked legitimate write is worse than a rare missed-lock race. The check
// is advisory only; the store's upsert remains last-write-wins.
func (s *attendanceService) finalized(ctx context.Context, key models.NaturalKey) bool {
	record, err := s.records.FindByKey(ctx, key)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).
				Uint("student_id", key.StudentID).
				Uint("class_id", key.ClassID).
				Msg("finalization lookup failed, treating record as not finalized")
		}
		return false
	}
	return record.FinalizedByAdmin
}

// stamp converts a validated candidate into the record to be written, carrying
// the recorder identity and a fresh last_updated_at. Teachers default the
// teacher_id to themselves; only admins can carry the finalize intent through.
func (s *attendanceService) stamp(candidate models.AttendanceCandidate, actor models.Actor) models.AttendanceRecord {
	record := models.AttendanceRecord{
		StudentID:      *candidate.StudentID,
		ClassID:        *candidate.ClassID,
		SubjectID:      candidate.SubjectID,
		Date:           *candidate.Date,
		Status:         models.AttendanceStatus(candidate.Status),
		Remarks:        candidate.Remarks,
		RecordedByID:   actor.ID,
		RecordedByRole: actor.Role,
		TeacherID:      candidate.TeacherID,
		LastUpdatedAt:  s.now(),
	}

	if actor.IsTeacher() && record.TeacherID == nil {
		teacherID := actor.ID
		record.TeacherID = &teacherID
	}

	if actor.IsAdmin() && candidate.Finalize {
		record.FinalizedByAdmin = true
	}

	return record
}

func validateCandidate(candidate models.AttendanceCandidate, requireSubject bool) *ValidationError {
	var missing []string
	if candidate.StudentID == nil {
		missing = append(missing, "student_id")
	}
	if candidate.ClassID == nil {
		missing = append(missing, "class_id")
	}
	if candidate.Date == nil {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(candidate.Status) == "" {
		missing = append(missing, "status")
	}
	if requireSubject && candidate.SubjectID == nil {
		missing = append(missing, "subject_id")
	}
	if len(missing) > 0 {
		return &ValidationError{MissingFields: missing}
	}

	if !models.AttendanceStatus(candidate.Status).Valid() {
		return &ValidationError{Reason: fmt.Sprintf("invalid status %q", candidate.Status)}
	}

	return nil
}

func parseDateRange(start, end string) (*time.Time, *time.Time, error) {
	var startDate, endDate *time.Time
	if start != "" {
		parsed, err := time.Parse(dateLayout, start)
		if err != nil {
			return nil, nil, err
		}
		day := parsed.UTC()
		startDate = &day
	}
	if end != "" {
		parsed, err := time.Parse(dateLayout, end)
		if err != nil {
			return nil, nil, err
		}
		day := parsed.UTC()
		endDate = &day
	}
	return startDate, endDate, nil
}

func statsResponse(tally models.AttendanceTally) dto.AttendanceStatsResponse {
	return dto.AttendanceStatsResponse{
		Total:          tally.Total,
		Present:        tally.Present,
		Absent:         tally.Absent,
		Excused:        tally.Excused,
		AttendanceRate: attendanceRate(tally),
	}
}

func attendanceRate(tally models.AttendanceTally) int {
	if tally.Total == 0 {
		return 0
	}
	rate := float64(tally.Present) / float64(tally.Total) * 100
	return int(rate + 0.5)
}
