package services

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kelasku_app/internal/models"
)

// EnrollmentStore is the durable record of course entitlements. Upsert is
// keyed on the (user_id, course_id) unique index: absent rows are created,
// existing rows are left untouched.
type EnrollmentStore interface {
	Upsert(ctx context.Context, enrollment *models.Enrollment) error
	FindByUserAndCourse(ctx context.Context, userID, courseID uint) (*models.Enrollment, error)
}

// GormEnrollmentStore implements EnrollmentStore on PostgreSQL
type GormEnrollmentStore struct {
	db *gorm.DB
}

// NewGormEnrollmentStore creates an enrollment store backed by gorm
func NewGormEnrollmentStore(db *gorm.DB) *GormEnrollmentStore {
	return &GormEnrollmentStore{db: db}
}

// Upsert inserts the enrollment or, when a row for (user, course) already
// exists, does nothing. DO NOTHING rather than DO UPDATE: re-activation
// must not reset progress or regress a completed enrollment.
func (s *GormEnrollmentStore) Upsert(ctx context.Context, enrollment *models.Enrollment) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(enrollment).Error
}

func (s *GormEnrollmentStore) FindByUserAndCourse(ctx context.Context, userID, courseID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}
