package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/TekMoral/greenfield-portal-api/internal/models"
)

func setupAttendanceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Student{}, &models.Class{}, &models.Subject{}, &models.AttendanceRecord{}))
	return db
}

func subjectPtr(v uint) *uint {
	return &v
}

func attendanceRow(studentID uint, subjectID *uint, status models.AttendanceStatus) models.AttendanceRecord {
	return models.AttendanceRecord{
		StudentID:      studentID,
		ClassID:        2,
		SubjectID:      subjectID,
		Date:           time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Status:         status,
		RecordedByID:   7,
		RecordedByRole: models.RoleTeacher,
		LastUpdatedAt:  time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestAttendanceRepositoryUpsertIsIdempotent(t *testing.T) {
	db := setupAttendanceTestDB(t)
	repo := NewAttendanceRepository(db)

	first := attendanceRow(1, subjectPtr(3), models.AttendanceStatusPresent)
	written, err := repo.UpsertScoped(context.Background(), models.ScopeSubject, []models.AttendanceRecord{first})
	require.NoError(t, err)
	require.Len(t, written, 1)

	update := attendanceRow(1, subjectPtr(3), models.AttendanceStatusAbsent)
	update.LastUpdatedAt = first.LastUpdatedAt.Add(time.Hour)
	rewritten, err := repo.UpsertScoped(context.Background(), models.ScopeSubject, []models.AttendanceRecord{update})
	require.NoError(t, err)
	require.Len(t, rewritten, 1)
	require.Equal(t, written[0].ID, rewritten[0].ID, "same natural key must not duplicate rows")
	require.Equal(t, models.AttendanceStatusAbsent, rewritten[0].Status)

	var count int64
	require.NoError(t, db.Model(&models.AttendanceRecord{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAttendanceRepositoryScopesDoNotCollide(t *testing.T) {
	db := setupAttendanceTestDB(t)
	repo := NewAttendanceRepository(db)

	daily := attendanceRow(1, nil, models.AttendanceStatusPresent)
	_, err := repo.UpsertScoped(context.Background(), models.ScopeDaily, []models.AttendanceRecord{daily})
	require.NoError(t, err)

	scoped := attendanceRow(1, subjectPtr(3), models.AttendanceStatusAbsent)
	_, err = repo.UpsertScoped(context.Background(), models.ScopeSubject, []models.AttendanceRecord{scoped})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.AttendanceRecord{}).Count(&count).Error)
	require.Equal(t, int64(2), count, "daily and subject scopes are distinct rows")

	dailyStored, err := repo.FindByKey(context.Background(), daily.Key())
	require.NoError(t, err)
	require.Nil(t, dailyStored.SubjectID)
	require.Equal(t, models.AttendanceStatusPresent, dailyStored.Status)

	scopedStored, err := repo.FindByKey(context.Background(), scoped.Key())
	require.NoError(t, err)
	require.NotNil(t, scopedStored.SubjectID)
	require.Equal(t, models.AttendanceStatusAbsent, scopedStored.Status)
}

func TestAttendanceRepositoryFinalizedFlagSurvivesOverwrite(t *testing.T) {
	db := setupAttendanceTestDB(t)
	repo := NewAttendanceRepository(db)

	sealed := attendanceRow(1, nil, models.AttendanceStatusPresent)
	sealed.FinalizedByAdmin = true
	sealed.RecordedByID = 9
	sealed.RecordedByRole = models.RoleAdmin
	_, err := repo.UpsertScoped(context.Background(), models.ScopeDaily, []models.AttendanceRecord{sealed})
	require.NoError(t, err)

	correction := attendanceRow(1, nil, models.AttendanceStatusExcused)
	correction.RecordedByID = 9
	correction.RecordedByRole = models.RoleAdmin
	written, err := repo.UpsertScoped(context.Background(), models.ScopeDaily, []models.AttendanceRecord{correction})
	require.NoError(t, err)
	require.Len(t, written, 1)
	require.Equal(t, models.AttendanceStatusExcused, written[0].Status)
	require.True(t, written[0].FinalizedByAdmin, "overwrite must not unseal the row")
}

func TestAttendanceRepositoryFindByKeyMissing(t *testing.T) {
	db := setupAttendanceTestDB(t)
	repo := NewAttendanceRepository(db)

	_, err := repo.FindByKey(context.Background(), models.NaturalKey{
		StudentID: 99, ClassID: 2,
		Date: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAttendanceRepositoryListByDateOrdersByStudentName(t *testing.T) {
	db := setupAttendanceTestDB(t)
	repo := NewAttendanceRepository(db)

	zara := models.Student{ID: 1, Name: "Zara", Email: "zara@example.com"}
	amir := models.Student{ID: 2, Name: "Amir", Email: "amir@example.com"}
	require.NoError(t, db.Create(&zara).Error)
	require.NoError(t, db.Create(&amir).Error)

	rows := []models.AttendanceRecord{
		attendanceRow(1, nil, models.AttendanceStatusPresent),
		attendanceRow(2, nil, models.AttendanceStatusAbsent),
	}
	_, err := repo.UpsertScoped(context.Background(), models.ScopeDaily, rows)
	require.NoError(t, err)

	records, err := repo.ListByDate(context.Background(), 2, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Amir", records[0].Student.Name)
	require.Equal(t, "Zara", records[1].Student.Name)
}

func TestAttendanceRepositoryListByDateFiltersSubjectScope(t *testing.T) {
	db := setupAttendanceTestDB(t)
	repo := NewAttendanceRepository(db)

	daily := attendanceRow(1, nil, models.AttendanceStatusPresent)
	_, err := repo.UpsertScoped(context.Background(), models.ScopeDaily, []models.AttendanceRecord{daily})
	require.NoError(t, err)

	scoped := attendanceRow(1, subjectPtr(3), models.AttendanceStatusAbsent)
	_, err = repo.UpsertScoped(context.Background(), models.ScopeSubject, []models.AttendanceRecord{scoped})
	require.NoError(t, err)

	bySubject, err := repo.ListByDate(context.Background(), 2, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), subjectPtr(3))
	require.NoError(t, err)
	require.Len(t, bySubject, 1)
	require.NotNil(t, bySubject[0].SubjectID, "daily rows must not appear under a subject query")

	dailyOnly, err := repo.ListByDate(context.Background(), 2, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.Len(t, dailyOnly, 1)
	require.Nil(t, dailyOnly[0].SubjectID)
}

func TestAttendanceRepositoryListByStudentDescendingWithRange(t *testing.T) {
	db := setupAttendanceTestDB(t)
	repo := NewAttendanceRepository(db)

	days := []time.Time{
		time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC),
	}
	for _, day := range days {
		row := attendanceRow(1, nil, models.AttendanceStatusPresent)
		row.Date = day
		_, err := repo.UpsertScoped(context.Background(), models.ScopeDaily, []models.AttendanceRecord{row})
		require.NoError(t, err)
	}

	all, err := repo.ListByStudent(context.Background(), 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].Date.After(all[1].Date), "newest first")

	start := days[1]
	ranged, err := repo.ListByStudent(context.Background(), 1, &start, nil)
	require.NoError(t, err)
	require.Len(t, ranged, 2)
}

func TestAttendanceRepositoryTallyCountsByStatus(t *testing.T) {
	db := setupAttendanceTestDB(t)
	repo := NewAttendanceRepository(db)

	rows := []models.AttendanceRecord{
		attendanceRow(1, nil, models.AttendanceStatusPresent),
		attendanceRow(2, nil, models.AttendanceStatusPresent),
		attendanceRow(3, nil, models.AttendanceStatusAbsent),
		attendanceRow(4, nil, models.AttendanceStatusExcused),
	}
	_, err := repo.UpsertScoped(context.Background(), models.ScopeDaily, rows)
	require.NoError(t, err)

	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	classID := uint(2)
	tally, err := repo.Tally(context.Background(), AttendanceStatsFilter{ClassID: &classID, Date: &day})
	require.NoError(t, err)
	require.Equal(t, int64(4), tally.Total)
	require.Equal(t, int64(2), tally.Present)
	require.Equal(t, int64(1), tally.Absent)
	require.Equal(t, int64(1), tally.Excused)
}
