package dto

import (
	"strings"
	"time"

	"github.com/TekMoral/greenfield-portal-api/internal/models"
)

const dateLayout = "2006-01-02"

// MarkAttendanceRequest is the loosely-shaped attendance submission payload.
// Clients send identifiers in snake_case or camelCase; Normalize resolves the
// aliases onto the canonical candidate shape.
type MarkAttendanceRequest struct {
	StudentID      *uint  `json:"student_id" form:"student_id"`
	StudentIDAlias *uint  `json:"studentId" form:"studentId"`
	ClassID        *uint  `json:"class_id" form:"class_id"`
	ClassIDAlias   *uint  `json:"classId" form:"classId"`
	SubjectID      *uint  `json:"subject_id" form:"subject_id"`
	SubjectIDAlias *uint  `json:"subjectId" form:"subjectId"`
	TeacherID      *uint  `json:"teacher_id" form:"teacher_id"`
	TeacherIDAlias *uint  `json:"teacherId" form:"teacherId"`
	Date           string `json:"date" form:"date"`
	Status         string `json:"status" form:"status"`
	Remarks        string `json:"remarks" form:"remarks"`
	Finalize       bool   `json:"finalize" form:"finalize"`
}

// Normalize reshapes the request into a canonical candidate. Pure reshaping:
// no validation happens here, unparseable dates simply stay unset.
func (r MarkAttendanceRequest) Normalize() models.AttendanceCandidate {
	candidate := models.AttendanceCandidate{
		StudentID: coalesceID(r.StudentID, r.StudentIDAlias),
		ClassID:   coalesceID(r.ClassID, r.ClassIDAlias),
		SubjectID: coalesceID(r.SubjectID, r.SubjectIDAlias),
		TeacherID: coalesceID(r.TeacherID, r.TeacherIDAlias),
		Status:    strings.ToLower(strings.TrimSpace(r.Status)),
		Remarks:   strings.TrimSpace(r.Remarks),
		Finalize:  r.Finalize,
	}

	if raw := strings.TrimSpace(r.Date); raw != "" {
		if parsed, err := time.Parse(dateLayout, raw); err == nil {
			day := parsed.UTC()
			candidate.Date = &day
		}
	}

	return candidate
}

func coalesceID(canonical, alias *uint) *uint {
	if canonical != nil {
		return canonical
	}
	return alias
}

// BulkMarkAttendanceRequest carries a batch of submissions plus an optional
// batch-level finalize intent.
type BulkMarkAttendanceRequest struct {
	Records  []MarkAttendanceRequest `json:"records"`
	Finalize bool                    `json:"finalize"`
}

// AttendanceByDateRequest scopes a per-class, per-day read.
type AttendanceByDateRequest struct {
	ClassID   uint   `validate:"required"`
	Date      string `validate:"required,datetime=2006-01-02"`
	SubjectID *uint
}

// StudentAttendanceRequest scopes per-student reads and stats.
type StudentAttendanceRequest struct {
	StudentID uint   `validate:"required"`
	StartDate string `validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `validate:"omitempty,datetime=2006-01-02"`
}

// ClassSummaryRequest scopes the class/day summary.
type ClassSummaryRequest struct {
	ClassID uint   `validate:"required"`
	Date    string `validate:"required,datetime=2006-01-02"`
}

// AttendanceResponse is the serialized attendance row returned to API clients.
type AttendanceResponse struct {
	ID               uint      `json:"id"`
	StudentID        uint      `json:"student_id"`
	StudentName      string    `json:"student_name,omitempty"`
	ClassID          uint      `json:"class_id"`
	SubjectID        *uint     `json:"subject_id,omitempty"`
	SubjectName      string    `json:"subject_name,omitempty"`
	Date             string    `json:"date"`
	Status           string    `json:"status"`
	Remarks          string    `json:"remarks,omitempty"`
	RecordedByID     uint      `json:"recorded_by_id"`
	RecordedByRole   string    `json:"recorded_by_role"`
	TeacherID        *uint     `json:"teacher_id,omitempty"`
	FinalizedByAdmin bool      `json:"finalized_by_admin"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// NewAttendanceResponse converts a model into a DTO.
func NewAttendanceResponse(record models.AttendanceRecord) AttendanceResponse {
	response := AttendanceResponse{
		ID:               record.ID,
		StudentID:        record.StudentID,
		ClassID:          record.ClassID,
		SubjectID:        record.SubjectID,
		Date:             record.Date.Format(dateLayout),
		Status:           string(record.Status),
		Remarks:          record.Remarks,
		RecordedByID:     record.RecordedByID,
		RecordedByRole:   string(record.RecordedByRole),
		TeacherID:        record.TeacherID,
		FinalizedByAdmin: record.FinalizedByAdmin,
		LastUpdatedAt:    record.LastUpdatedAt,
	}

	if record.Student != nil {
		response.StudentName = record.Student.Name
	}
	if record.Subject != nil {
		response.SubjectName = record.Subject.Name
	}

	return response
}

// NewAttendanceResponseSlice converts a slice of models into DTOs.
func NewAttendanceResponseSlice(records []models.AttendanceRecord) []AttendanceResponse {
	responses := make([]AttendanceResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewAttendanceResponse(record))
	}

	return responses
}

// BulkMarkResponse reports the per-record outcomes of a bulk submission.
type BulkMarkResponse struct {
	Applied []AttendanceResponse   `json:"applied"`
	Skipped []models.SkippedRecord `json:"skipped"`
	Invalid []models.InvalidRecord `json:"invalid"`
}

// AttendanceStatsResponse carries rolled-up status counts.
type AttendanceStatsResponse struct {
	Total          int64 `json:"total"`
	Present        int64 `json:"present"`
	Absent         int64 `json:"absent"`
	Excused        int64 `json:"excused"`
	AttendanceRate int   `json:"attendanceRate"`
}
