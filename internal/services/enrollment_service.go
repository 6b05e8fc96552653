package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"kelasku_app/internal/models"
)

// EnrollmentService idempotently grants course entitlement. It is invoked
// from the lifecycle engine when a transaction reaches paid; repeated calls
// for the same (user, course) converge on one enrollment row.
type EnrollmentService struct {
	store EnrollmentStore
}

// NewEnrollmentService creates the activation service
func NewEnrollmentService(store EnrollmentStore) *EnrollmentService {
	return &EnrollmentService{store: store}
}

// Activate upserts the enrollment for (userID, courseID): created as active
// when absent, left as-is when present. Errors here must be surfaced by the
// caller — a dropped activation after a paid transition is the one failure
// that may not be swallowed.
func (s *EnrollmentService) Activate(ctx context.Context, userID, courseID uint) error {
	enrollment := &models.Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now(),
	}

	if err := s.store.Upsert(ctx, enrollment); err != nil {
		return fmt.Errorf("activate enrollment user=%d course=%d: %w", userID, courseID, err)
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"course_id": courseID,
	}).Info("Enrollment activated")

	return nil
}
