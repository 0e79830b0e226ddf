package models

import "time"

// AttendanceStatus enumerates the supported attendance states.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// ConflictScope identifies which natural key an attendance record falls under.
// Records without a subject are unique per (student, class, date); records with
// a subject are unique per (student, class, subject, date). The two scopes map
// to distinct partial unique indexes and must never share one conflict target.
type ConflictScope int

const (
	ScopeDaily ConflictScope = iota
	ScopeSubject
)

// String names the scope for logs and metrics labels.
func (s ConflictScope) String() string {
	if s == ScopeSubject {
		return "subject"
	}
	return "daily"
}

// NaturalKey is the caller-visible identifying tuple of an attendance record.
type NaturalKey struct {
	StudentID uint
	ClassID   uint
	SubjectID *uint
	Date      time.Time
}

// Scope returns the conflict scope this key belongs to.
func (k NaturalKey) Scope() ConflictScope {
	if k.SubjectID != nil {
		return ScopeSubject
	}
	return ScopeDaily
}

// AttendanceRecord is one persisted attendance row. Uniqueness is enforced by
// two partial indexes, one per conflict scope.
type AttendanceRecord struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	StudentID      uint             `gorm:"not null;index:idx_attendance_daily,unique,where:subject_id IS NULL,priority:1;index:idx_attendance_subject,unique,where:subject_id IS NOT NULL,priority:1" json:"student_id"`
	ClassID        uint             `gorm:"not null;index:idx_attendance_daily,unique,where:subject_id IS NULL,priority:2;index:idx_attendance_subject,unique,where:subject_id IS NOT NULL,priority:2" json:"class_id"`
	SubjectID      *uint            `gorm:"index:idx_attendance_subject,unique,where:subject_id IS NOT NULL,priority:3" json:"subject_id,omitempty"`
	Date           time.Time        `gorm:"not null;index:idx_attendance_daily,unique,where:subject_id IS NULL,priority:3;index:idx_attendance_subject,unique,where:subject_id IS NOT NULL,priority:4" json:"date"`
	Status         AttendanceStatus `gorm:"size:16;not null" json:"status"`
	Remarks        string           `gorm:"type:text" json:"remarks,omitempty"`
	RecordedByID   uint             `json:"recorded_by_id"`
	RecordedByRole Role             `gorm:"size:16" json:"recorded_by_role"`
	TeacherID      *uint            `json:"teacher_id,omitempty"`

	// FinalizedByAdmin is monotonic: only admins set it, and only false -> true.
	FinalizedByAdmin bool `gorm:"not null;default:false" json:"finalized_by_admin"`

	LastUpdatedAt time.Time `json:"last_updated_at"`
	CreatedAt     time.Time `json:"created_at"`

	Student *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Subject *Subject `gorm:"foreignKey:SubjectID" json:"subject,omitempty"`
}

// Key returns the record's natural key.
func (r AttendanceRecord) Key() NaturalKey {
	return NaturalKey{
		StudentID: r.StudentID,
		ClassID:   r.ClassID,
		SubjectID: r.SubjectID,
		Date:      r.Date,
	}
}

// Scope returns the conflict scope the record upserts against.
func (r AttendanceRecord) Scope() ConflictScope {
	return r.Key().Scope()
}

// AttendanceCandidate is a normalized, not-yet-validated attendance submission.
// Pointer fields distinguish absent values from zero values so validation can
// name every missing field.
type AttendanceCandidate struct {
	StudentID *uint      `json:"student_id,omitempty"`
	ClassID   *uint      `json:"class_id,omitempty"`
	SubjectID *uint      `json:"subject_id,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Status    string     `json:"status,omitempty"`
	Remarks   string     `json:"remarks,omitempty"`
	TeacherID *uint      `json:"teacher_id,omitempty"`
	Finalize  bool       `json:"finalize,omitempty"`
}

// Key builds the natural key for a candidate. Only meaningful after the
// candidate passed validation.
func (c AttendanceCandidate) Key() NaturalKey {
	key := NaturalKey{SubjectID: c.SubjectID}
	if c.StudentID != nil {
		key.StudentID = *c.StudentID
	}
	if c.ClassID != nil {
		key.ClassID = *c.ClassID
	}
	if c.Date != nil {
		key.Date = *c.Date
	}
	return key
}

// SkippedRecord reports a bulk candidate rejected by the finalization lock.
type SkippedRecord struct {
	Record AttendanceCandidate `json:"record"`
	Reason string              `json:"reason"`
}

// InvalidRecord reports a bulk candidate that failed validation, by input index.
type InvalidRecord struct {
	Index  int                 `json:"index"`
	Error  string              `json:"error"`
	Record AttendanceCandidate `json:"record"`
}

// BulkSubmissionResult partitions a bulk write into per-record outcomes.
// Partial success is the expected shape, not an error state.
type BulkSubmissionResult struct {
	Applied []AttendanceRecord `json:"applied"`
	Skipped []SkippedRecord    `json:"skipped"`
	Invalid []InvalidRecord    `json:"invalid"`
}

// AttendanceTally carries status counts for stats and summaries.
type AttendanceTally struct {
	Total   int64
	Present int64
	Absent  int64
	Excused int64
}
