package models

import (
	"time"

	"gorm.io/gorm"
)

// EnrollmentStatus represents the lifecycle of an enrollment
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusExpired   EnrollmentStatus = "expired"
)

// Enrollment is a learner's entitlement to access one course.
// A user has at most one enrollment row per course, no matter how many
// transactions were attempted for that course; the composite unique index
// is what makes activation an upsert rather than a blind insert.
type Enrollment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID   uint `gorm:"uniqueIndex:idx_enrollments_user_course;index" json:"user_id"`
	CourseID uint `gorm:"uniqueIndex:idx_enrollments_user_course" json:"course_id"`

	Status EnrollmentStatus `gorm:"type:varchar(20);default:'active'" json:"status"`

	EnrolledAt  time.Time  `json:"enrolled_at"`
	CompletedAt *time.Time `json:"completed_at"`
	ExpiresAt   *time.Time `json:"expires_at"`

	// Progress counters are written by the learning subsystem, not by
	// the activation path
	LessonsCompleted int `gorm:"default:0" json:"lessons_completed"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}
