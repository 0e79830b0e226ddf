package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TekMoral/greenfield-portal-api/internal/models"
)

// AttendanceStatsFilter narrows tally queries for stats and summaries.
type AttendanceStatsFilter struct {
	StudentID *uint
	ClassID   *uint
	Date      *time.Time
	StartDate *time.Time
	EndDate   *time.Time
}

// AttendanceRepository defines persistence operations for attendance records.
type AttendanceRepository interface {
	FindByKey(ctx context.Context, key models.NaturalKey) (models.AttendanceRecord, error)
	UpsertScoped(ctx context.Context, scope models.ConflictScope, records []models.AttendanceRecord) ([]models.AttendanceRecord, error)
	ListByDate(ctx context.Context, classID uint, date time.Time, subjectID *uint) ([]models.AttendanceRecord, error)
	ListByStudent(ctx context.Context, studentID uint, startDate, endDate *time.Time) ([]models.AttendanceRecord, error)
	Tally(ctx context.Context, filter AttendanceStatsFilter) (models.AttendanceTally, error)
}

type attendanceRepository struct {
	db *gorm.DB
}

// NewAttendanceRepository constructs the repository implementation.
func NewAttendanceRepository(db *gorm.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) FindByKey(ctx context.Context, key models.NaturalKey) (models.AttendanceRecord, error) {
	query := r.db.WithContext(ctx).
		Where("student_id = ?", key.StudentID).
		Where("class_id = ?", key.ClassID).
		Where("date = ?", key.Date)

	switch key.Scope() {
	case models.ScopeSubject:
		query = query.Where("subject_id = ?", *key.SubjectID)
	default:
		query = query.Where("subject_id IS NULL")
	}

	var record models.AttendanceRecord
	if err := query.First(&record).Error; err != nil {
		return models.AttendanceRecord{}, err
	}

	return record, nil
}

// UpsertScoped inserts or updates the given records against the natural key
// matching the scope. All records in one call must share that scope; mixing
// scopes under one conflict target would match the wrong unique index.
// finalized_by_admin is merged with OR so an already sealed row can never be
// unsealed by a concurrent write.
func (r *attendanceRepository) UpsertScoped(ctx context.Context, scope models.ConflictScope, records []models.AttendanceRecord) ([]models.AttendanceRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	updates := clause.Assignments(map[string]interface{}{
		"status":             gorm.Expr("excluded.status"),
		"remarks":            gorm.Expr("excluded.remarks"),
		"recorded_by_id":     gorm.Expr("excluded.recorded_by_id"),
		"recorded_by_role":   gorm.Expr("excluded.recorded_by_role"),
		"teacher_id":         gorm.Expr("excluded.teacher_id"),
		"finalized_by_admin": gorm.Expr("attendance_records.finalized_by_admin OR excluded.finalized_by_admin"),
		"last_updated_at":    gorm.Expr("excluded.last_updated_at"),
	})

	var conflict clause.OnConflict
	switch scope {
	case models.ScopeSubject:
		conflict = clause.OnConflict{
			Columns:     []clause.Column{{Name: "student_id"}, {Name: "class_id"}, {Name: "subject_id"}, {Name: "date"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "subject_id IS NOT NULL"}}},
			DoUpdates:   updates,
		}
	default:
		conflict = clause.OnConflict{
			Columns:     []clause.Column{{Name: "student_id"}, {Name: "class_id"}, {Name: "date"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "subject_id IS NULL"}}},
			DoUpdates:   updates,
		}
	}

	if err := r.db.WithContext(ctx).Clauses(conflict).Create(&records).Error; err != nil {
		return nil, err
	}

	// Re-read the written rows so callers see the stored state, including a
	// finalized flag preserved by the OR merge on conflicting writes.
	written := make([]models.AttendanceRecord, 0, len(records))
	for _, record := range records {
		stored, err := r.FindByKey(ctx, record.Key())
		if err != nil {
			return nil, err
		}
		written = append(written, stored)
	}

	return written, nil
}

func (r *attendanceRepository) ListByDate(ctx context.Context, classID uint, date time.Time, subjectID *uint) ([]models.AttendanceRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Joins("LEFT JOIN students ON students.id = attendance_records.student_id").
		Preload("Student").
		Preload("Subject").
		Where("attendance_records.class_id = ?", classID).
		Where("attendance_records.date = ?", date)

	if subjectID != nil {
		query = query.Where("attendance_records.subject_id = ?", *subjectID)
	} else {
		query = query.Where("attendance_records.subject_id IS NULL")
	}

	var records []models.AttendanceRecord
	if err := query.Order("students.name ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *attendanceRepository) ListByStudent(ctx context.Context, studentID uint, startDate, endDate *time.Time) ([]models.AttendanceRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Preload("Subject").
		Where("student_id = ?", studentID)

	if startDate != nil {
		query = query.Where("date >= ?", *startDate)
	}
	if endDate != nil {
		query = query.Where("date <= ?", *endDate)
	}

	var records []models.AttendanceRecord
	if err := query.Order("date DESC").Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *attendanceRepository) Tally(ctx context.Context, filter AttendanceStatsFilter) (models.AttendanceTally, error) {
	query := r.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status")

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}
	if filter.Date != nil {
		query = query.Where("date = ?", *filter.Date)
	}
	if filter.StartDate != nil {
		query = query.Where("date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("date <= ?", *filter.EndDate)
	}

	var rows []struct {
		Status models.AttendanceStatus
		Count  int64
	}
	if err := query.Scan(&rows).Error; err != nil {
		return models.AttendanceTally{}, err
	}

	tally := models.AttendanceTally{}
	for _, row := range rows {
		tally.Total += row.Count
		switch row.Status {
		case models.AttendanceStatusPresent:
			tally.Present += row.Count
		case models.AttendanceStatusAbsent:
			tally.Absent += row.Count
		case models.AttendanceStatusExcused:
			tally.Excused += row.Count
		}
	}

	return tally, nil
}
