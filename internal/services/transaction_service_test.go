package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kelasku_app/internal/models"
)

// fakeTransactionStore is an in-memory TransactionStore with the same CAS
// semantics as the gorm implementation: Mark* only succeeds from pending,
// under one mutex, so concurrent callers race exactly like rows in Postgres.
type fakeTransactionStore struct {
	mu        sync.Mutex
	seq       uint
	byID      map[uint]*models.Transaction
	callbacks []models.PaymentCallbackHistory

	markPaidErr error
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{byID: make(map[uint]*models.Transaction)}
}

func (s *fakeTransactionStore) Create(_ context.Context, trx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	trx.ID = s.seq
	cp := *trx
	s.byID[trx.ID] = &cp
	return nil
}

func (s *fakeTransactionStore) FindByID(_ context.Context, id uint) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trx, ok := s.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *trx
	return &cp, nil
}

func (s *fakeTransactionStore) FindByReference(_ context.Context, reference string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, trx := range s.byID {
		if trx.Reference != nil && *trx.Reference == reference {
			cp := *trx
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (s *fakeTransactionStore) SaveRawPayload(_ context.Context, id uint, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trx, ok := s.byID[id]; ok {
		trx.RawPayload = payload
	}
	return nil
}

func (s *fakeTransactionStore) MarkPaid(_ context.Context, id uint, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markPaidErr != nil {
		return false, s.markPaidErr
	}
	trx, ok := s.byID[id]
	if !ok || trx.Status != models.TransactionStatusPending {
		return false, nil
	}
	trx.Status = models.TransactionStatusPaid
	trx.PaidAt = &paidAt
	return true, nil
}

func (s *fakeTransactionStore) MarkExpired(_ context.Context, id uint, expiredAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trx, ok := s.byID[id]
	if !ok || trx.Status != models.TransactionStatusPending {
		return false, nil
	}
	trx.Status = models.TransactionStatusExpired
	trx.ExpiredAt = &expiredAt
	return true, nil
}

func (s *fakeTransactionStore) MarkFailed(_ context.Context, id uint, notes string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trx, ok := s.byID[id]
	if !ok || trx.Status != models.TransactionStatusPending {
		return false, nil
	}
	trx.Status = models.TransactionStatusFailed
	if notes != "" {
		trx.Notes = notes
	}
	return true, nil
}

func (s *fakeTransactionStore) RecordCallback(_ context.Context, history *models.PaymentCallbackHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, *history)
	return nil
}

func (s *fakeTransactionStore) FindStalePending(_ context.Context, cutoff time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []models.Transaction
	for _, trx := range s.byID {
		if trx.Status == models.TransactionStatusPending &&
			trx.PaymentMethod == models.PaymentMethodGateway &&
			trx.CreatedAt.Before(cutoff) {
			stale = append(stale, *trx)
		}
	}
	return stale, nil
}

// fakeEnrollmentStore mimics the ON CONFLICT DO NOTHING upsert
type fakeEnrollmentStore struct {
	mu      sync.Mutex
	rows    map[[2]uint]*models.Enrollment
	upserts int

	upsertErr error
}

func newFakeEnrollmentStore() *fakeEnrollmentStore {
	return &fakeEnrollmentStore{rows: make(map[[2]uint]*models.Enrollment)}
}

func (s *fakeEnrollmentStore) Upsert(_ context.Context, enrollment *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	key := [2]uint{enrollment.UserID, enrollment.CourseID}
	if _, exists := s.rows[key]; exists {
		return nil
	}
	cp := *enrollment
	s.rows[key] = &cp
	return nil
}

func (s *fakeEnrollmentStore) FindByUserAndCourse(_ context.Context, userID, courseID uint) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[[2]uint{userID, courseID}]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeEnrollmentStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type fakeNotifier struct {
	mu       sync.Mutex
	enqueued []uint

	err error
}

func (n *fakeNotifier) EnqueuePaymentConfirmation(_ context.Context, trx *models.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.enqueued = append(n.enqueued, trx.ID)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.enqueued)
}

type fakeGateway struct {
	reference   string
	checkoutURL string
	err         error
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &CheckoutResult{Reference: g.reference, CheckoutURL: g.checkoutURL}, nil
}

func (g *fakeGateway) AdminFee(channel string) float64 {
	if channel == "QRIS" {
		return 750
	}
	return 2500
}

type fakeCatalog struct {
	courses map[uint]*models.Course
	promos  map[string]*models.PromoCode
}

func (c *fakeCatalog) Course(_ context.Context, id uint) (*models.Course, error) {
	if course, ok := c.courses[id]; ok {
		return course, nil
	}
	return nil, ErrCourseNotFound
}

func (c *fakeCatalog) PromoCode(_ context.Context, code string) (*models.PromoCode, error) {
	if promo, ok := c.promos[code]; ok {
		return promo, nil
	}
	return nil, ErrPromoCodeInvalid
}

type engineFixture struct {
	store    *fakeTransactionStore
	enrolls  *fakeEnrollmentStore
	notifier *fakeNotifier
	gateway  *fakeGateway
	engine   *TransactionService
}

func newEngineFixture() *engineFixture {
	store := newFakeTransactionStore()
	enrolls := newFakeEnrollmentStore()
	notifier := &fakeNotifier{}
	gateway := &fakeGateway{reference: "T-GW-1", checkoutURL: "https://pay.example/T-GW-1"}
	catalog := &fakeCatalog{
		courses: map[uint]*models.Course{
			1: {ID: 1, Name: "Belajar Go", Price: 150000, IsPublished: true},
		},
		promos: map[string]*models.PromoCode{
			"HEMAT50": {ID: 7, Code: "HEMAT50", Discount: 50000, IsActive: true},
			"GRATIS":  {ID: 8, Code: "GRATIS", Discount: 999999, IsActive: true},
		},
	}

	return &engineFixture{
		store:    store,
		enrolls:  enrolls,
		notifier: notifier,
		gateway:  gateway,
		engine:   NewTransactionService(store, NewEnrollmentService(enrolls), notifier, gateway, catalog),
	}
}

func (f *engineFixture) seed(t *testing.T, method models.PaymentMethod, reference string) *models.Transaction {
	t.Helper()
	trx := &models.Transaction{
		InvoiceNumber: "INV-20260901-" + reference,
		UserID:        10,
		CourseID:      1,
		Amount:        150000,
		Total:         150000,
		PaymentMethod: method,
		Status:        models.TransactionStatusPending,
	}
	if reference != "" {
		ref := reference
		trx.Reference = &ref
	}
	require.NoError(t, f.store.Create(context.Background(), trx))
	return trx
}

func TestHandleCallbackPaid(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")
	payload := json.RawMessage(`{"reference":"REF1","status":"PAID"}`)

	err := f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, payload)
	require.NoError(t, err)

	got, err := f.store.FindByID(context.Background(), trx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.JSONEq(t, string(payload), string(got.RawPayload))

	assert.Equal(t, 1, f.enrolls.count())
	enrollment, err := f.enrolls.FindByUserAndCourse(context.Background(), trx.UserID, trx.CourseID)
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)

	assert.Equal(t, 1, f.notifier.count())
	require.Len(t, f.store.callbacks, 1)
	assert.Equal(t, "REF1", f.store.callbacks[0].Reference)
}

func TestHandleCallbackPaidConcurrent(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")
	payload := json.RawMessage(`{"reference":"REF1","status":"PAID"}`)

	const deliveries = 16
	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, payload)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	got, err := f.store.FindByID(context.Background(), trx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPaid, got.Status)

	// However many deliveries raced, there is exactly one enrollment row
	// and exactly one notification
	assert.Equal(t, 1, f.enrolls.count())
	assert.Equal(t, 1, f.notifier.count())
}

func TestHandleCallbackDuplicatePaid(t *testing.T) {
	f := newEngineFixture()
	f.seed(t, models.PaymentMethodGateway, "REF1")
	payload := json.RawMessage(`{"reference":"REF1","status":"PAID"}`)

	require.NoError(t, f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, payload))
	require.NoError(t, f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, payload))

	// The replay re-ran the upsert but converged on the same single row,
	// and did not re-notify
	assert.Equal(t, 2, f.enrolls.upserts)
	assert.Equal(t, 1, f.enrolls.count())
	assert.Equal(t, 1, f.notifier.count())

	// Both deliveries are on the audit trail
	assert.Len(t, f.store.callbacks, 2)
}

func TestHandleCallbackExpired(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")

	err := f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusExpired, json.RawMessage(`{"status":"EXPIRED"}`))
	require.NoError(t, err)

	got, _ := f.store.FindByID(context.Background(), trx.ID)
	assert.Equal(t, models.TransactionStatusExpired, got.Status)
	require.NotNil(t, got.ExpiredAt)
	assert.Nil(t, got.PaidAt)
	assert.Zero(t, f.enrolls.count())
	assert.Zero(t, f.notifier.count())
}

func TestHandleCallbackPaidAfterExpired(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")

	require.NoError(t, f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusExpired, json.RawMessage(`{}`)))

	// Late PAID for an already-expired transaction is a logged no-op
	err := f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, json.RawMessage(`{}`))
	require.NoError(t, err)

	got, _ := f.store.FindByID(context.Background(), trx.ID)
	assert.Equal(t, models.TransactionStatusExpired, got.Status)
	assert.Nil(t, got.PaidAt)
	assert.Zero(t, f.enrolls.count())
	assert.Zero(t, f.notifier.count())
}

func TestHandleCallbackFailed(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")

	err := f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusFailed, json.RawMessage(`{"status":"FAILED"}`))
	require.NoError(t, err)

	got, _ := f.store.FindByID(context.Background(), trx.ID)
	assert.Equal(t, models.TransactionStatusFailed, got.Status)
	assert.Zero(t, f.enrolls.count())
}

func TestHandleCallbackUnknownStatus(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")
	payload := json.RawMessage(`{"status":"REFUND"}`)

	err := f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusUnknown, payload)
	require.NoError(t, err)

	// No transition, but the delivery is still on the audit trail
	got, _ := f.store.FindByID(context.Background(), trx.ID)
	assert.Equal(t, models.TransactionStatusPending, got.Status)
	assert.JSONEq(t, string(payload), string(got.RawPayload))
	assert.Len(t, f.store.callbacks, 1)
}

func TestHandleCallbackUnknownReference(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.HandleCallback(context.Background(), "NOPE", CallbackStatusPaid, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestHandleCallbackActivationFailureThenHeal(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")

	// First delivery wins the CAS but activation fails: the error must
	// propagate so the gateway redelivers
	f.enrolls.upsertErr = errors.New("enrollments table unavailable")
	err := f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, json.RawMessage(`{}`))
	require.Error(t, err)

	got, _ := f.store.FindByID(context.Background(), trx.ID)
	assert.Equal(t, models.TransactionStatusPaid, got.Status)
	assert.Zero(t, f.enrolls.count())

	// The redelivery loses the CAS but heals the missing enrollment
	f.enrolls.upsertErr = nil
	err = f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, f.enrolls.count())
}

func TestActivationDoesNotRegressCompletedEnrollment(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")

	// Buyer already finished this course through an earlier transaction
	f.enrolls.rows[[2]uint{trx.UserID, trx.CourseID}] = &models.Enrollment{
		UserID:   trx.UserID,
		CourseID: trx.CourseID,
		Status:   models.EnrollmentStatusCompleted,
	}

	err := f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, json.RawMessage(`{}`))
	require.NoError(t, err)

	enrollment, err := f.enrolls.FindByUserAndCourse(context.Background(), trx.UserID, trx.CourseID)
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, 1, f.enrolls.count())
}

func TestHandleCallbackNotificationFailureContained(t *testing.T) {
	f := newEngineFixture()
	f.seed(t, models.PaymentMethodGateway, "REF1")
	f.notifier.err = errors.New("queue unavailable")

	err := f.engine.HandleCallback(context.Background(), "REF1", CallbackStatusPaid, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, f.enrolls.count())
}

func TestApproveCash(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodCash, "")

	got, err := f.engine.ApproveCash(context.Background(), trx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, 1, f.enrolls.count())
	assert.Equal(t, 1, f.notifier.count())
}

func TestApproveCashWrongMethod(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodGateway, "REF1")

	_, err := f.engine.ApproveCash(context.Background(), trx.ID)
	assert.ErrorIs(t, err, ErrWrongPaymentMethod)
	assert.Zero(t, f.enrolls.count())
}

func TestApproveCashAlreadyProcessed(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodCash, "")

	_, err := f.engine.ApproveCash(context.Background(), trx.ID)
	require.NoError(t, err)

	_, err = f.engine.ApproveCash(context.Background(), trx.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	// Second approval did not re-notify
	assert.Equal(t, 1, f.notifier.count())
}

func TestApproveCashNotFound(t *testing.T) {
	f := newEngineFixture()

	_, err := f.engine.ApproveCash(context.Background(), 999)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestRejectCash(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodCash, "")

	got, err := f.engine.RejectCash(context.Background(), trx.ID, "no payment received")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, got.Status)
	assert.Equal(t, "no payment received", got.Notes)
	assert.Zero(t, f.enrolls.count())
	assert.Zero(t, f.notifier.count())
}

func TestRejectCashAlreadyProcessed(t *testing.T) {
	f := newEngineFixture()
	trx := f.seed(t, models.PaymentMethodCash, "")

	_, err := f.engine.ApproveCash(context.Background(), trx.ID)
	require.NoError(t, err)

	_, err = f.engine.RejectCash(context.Background(), trx.ID, "too late")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	got, _ := f.store.FindByID(context.Background(), trx.ID)
	assert.Equal(t, models.TransactionStatusPaid, got.Status)
}

func TestCreateTransactionGateway(t *testing.T) {
	f := newEngineFixture()
	buyer := &models.User{ID: 10, Name: "Budi", Email: "budi@example.com"}

	trx, err := f.engine.CreateTransaction(context.Background(), buyer, CreateTransactionInput{
		CourseID:       1,
		PromoCode:      "HEMAT50",
		PaymentMethod:  models.PaymentMethodGateway,
		PaymentChannel: "QRIS",
	})
	require.NoError(t, err)

	assert.Equal(t, models.TransactionStatusPending, trx.Status)
	assert.Equal(t, float64(150000), trx.Amount)
	assert.Equal(t, float64(50000), trx.Discount)
	assert.Equal(t, float64(750), trx.AdminFee)
	assert.Equal(t, float64(100750), trx.Total)
	require.NotNil(t, trx.Reference)
	assert.Equal(t, "T-GW-1", *trx.Reference)
	assert.Equal(t, "https://pay.example/T-GW-1", trx.PaymentURL)
	require.NotNil(t, trx.PaymentChannel)
	assert.Equal(t, "QRIS", *trx.PaymentChannel)
	assert.NotEmpty(t, trx.InvoiceNumber)
}

func TestCreateTransactionCash(t *testing.T) {
	f := newEngineFixture()
	buyer := &models.User{ID: 10, Name: "Budi", Email: "budi@example.com"}

	trx, err := f.engine.CreateTransaction(context.Background(), buyer, CreateTransactionInput{
		CourseID:      1,
		PaymentMethod: models.PaymentMethodCash,
	})
	require.NoError(t, err)

	assert.Zero(t, trx.AdminFee)
	assert.Equal(t, float64(150000), trx.Total)
	assert.Nil(t, trx.Reference)
	assert.Nil(t, trx.PaymentChannel)
	assert.Empty(t, trx.PaymentURL)
}

func TestCreateTransactionDiscountCapped(t *testing.T) {
	f := newEngineFixture()
	buyer := &models.User{ID: 10, Name: "Budi", Email: "budi@example.com"}

	trx, err := f.engine.CreateTransaction(context.Background(), buyer, CreateTransactionInput{
		CourseID:      1,
		PromoCode:     "GRATIS",
		PaymentMethod: models.PaymentMethodCash,
	})
	require.NoError(t, err)

	// The discount never exceeds the course price
	assert.Equal(t, trx.Amount, trx.Discount)
	assert.Zero(t, trx.Total)
}

func TestCreateTransactionCourseNotFound(t *testing.T) {
	f := newEngineFixture()
	buyer := &models.User{ID: 10}

	_, err := f.engine.CreateTransaction(context.Background(), buyer, CreateTransactionInput{
		CourseID:      999,
		PaymentMethod: models.PaymentMethodCash,
	})
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestCreateTransactionPromoInvalid(t *testing.T) {
	f := newEngineFixture()
	buyer := &models.User{ID: 10}

	_, err := f.engine.CreateTransaction(context.Background(), buyer, CreateTransactionInput{
		CourseID:      1,
		PromoCode:     "EXPIRED_CODE",
		PaymentMethod: models.PaymentMethodCash,
	})
	assert.ErrorIs(t, err, ErrPromoCodeInvalid)
}

func TestCreateTransactionGatewayCheckoutFailure(t *testing.T) {
	f := newEngineFixture()
	f.gateway.err = errors.New("gateway timeout")
	buyer := &models.User{ID: 10}

	_, err := f.engine.CreateTransaction(context.Background(), buyer, CreateTransactionInput{
		CourseID:       1,
		PaymentMethod:  models.PaymentMethodGateway,
		PaymentChannel: "QRIS",
	})
	require.Error(t, err)

	// Nothing was persisted for a checkout that never existed
	_, ferr := f.store.FindByID(context.Background(), 1)
	assert.ErrorIs(t, ferr, ErrTransactionNotFound)
}
