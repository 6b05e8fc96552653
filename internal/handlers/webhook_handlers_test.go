package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kelasku_app/internal/services"
)

type stubVerifier struct {
	accept bool
}

func (v *stubVerifier) VerifyCallback(signature string, rawBody []byte) bool {
	return v.accept
}

type stubEngine struct {
	err error

	reference string
	status    services.CallbackStatus
	payload   json.RawMessage
	calls     int
}

func (e *stubEngine) HandleCallback(_ context.Context, reference string, status services.CallbackStatus, rawPayload json.RawMessage) error {
	e.calls++
	e.reference = reference
	e.status = status
	e.payload = rawPayload
	return e.err
}

func postCallback(h *WebhookHandler, body string, headers map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/callbacks/tripay", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.TripayCallback(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestTripayCallbackAccepted(t *testing.T) {
	engine := &stubEngine{}
	h := &WebhookHandler{verifier: &stubVerifier{accept: true}, engine: engine}

	body := `{"reference":"REF1","status":"PAID"}`
	rec := postCallback(h, body, map[string]string{"X-Callback-Signature": "deadbeef"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	require.Equal(t, 1, engine.calls)
	assert.Equal(t, "REF1", engine.reference)
	assert.Equal(t, services.CallbackStatusPaid, engine.status)
	assert.JSONEq(t, body, string(engine.payload))
}

func TestTripayCallbackBadSignature(t *testing.T) {
	engine := &stubEngine{}
	h := &WebhookHandler{verifier: &stubVerifier{accept: false}, engine: engine}

	rec := postCallback(h, `{"reference":"REF1","status":"PAID"}`, map[string]string{"X-Callback-Signature": "bogus"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// Nothing past the trust boundary ran
	assert.Zero(t, engine.calls)
}

func TestTripayCallbackMalformedBody(t *testing.T) {
	engine := &stubEngine{}
	h := &WebhookHandler{verifier: &stubVerifier{accept: true}, engine: engine}

	rec := postCallback(h, `{not json`, map[string]string{"X-Callback-Signature": "deadbeef"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, engine.calls)
}

func TestTripayCallbackMissingReference(t *testing.T) {
	engine := &stubEngine{}
	h := &WebhookHandler{verifier: &stubVerifier{accept: true}, engine: engine}

	rec := postCallback(h, `{"status":"PAID"}`, map[string]string{"X-Callback-Signature": "deadbeef"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, engine.calls)
}

func TestTripayCallbackUnknownReferenceStillAcked(t *testing.T) {
	engine := &stubEngine{err: services.ErrTransactionNotFound}
	h := &WebhookHandler{verifier: &stubVerifier{accept: true}, engine: engine}

	rec := postCallback(h, `{"reference":"NOPE","status":"PAID"}`, map[string]string{"X-Callback-Signature": "deadbeef"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestTripayCallbackEngineFailure(t *testing.T) {
	engine := &stubEngine{err: errors.New("database unavailable")}
	h := &WebhookHandler{verifier: &stubVerifier{accept: true}, engine: engine}

	rec := postCallback(h, `{"reference":"REF1","status":"PAID"}`, map[string]string{"X-Callback-Signature": "deadbeef"})

	// Server error so the gateway redelivers
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTripayCallbackIgnoresOtherEvents(t *testing.T) {
	engine := &stubEngine{}
	h := &WebhookHandler{verifier: &stubVerifier{accept: true}, engine: engine}

	rec := postCallback(h, `{"reference":"REF1"}`, map[string]string{
		"X-Callback-Signature": "deadbeef",
		"X-Callback-Event":     "merchant_update",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, engine.calls)
}

func TestTripayCallbackUnknownStatusMapped(t *testing.T) {
	engine := &stubEngine{}
	h := &WebhookHandler{verifier: &stubVerifier{accept: true}, engine: engine}

	rec := postCallback(h, `{"reference":"REF1","status":"REFUND"}`, map[string]string{"X-Callback-Signature": "deadbeef"})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, engine.calls)
	assert.Equal(t, services.CallbackStatusUnknown, engine.status)
}
