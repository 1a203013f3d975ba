package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/districtsmiles/appointment-booking/internal/booking"
	"github.com/districtsmiles/appointment-booking/internal/gateway"
	"github.com/districtsmiles/appointment-booking/internal/model"
)

const testWebhookSecret = "whsec_test"

// Minimal in-memory stores satisfying the reconciler's dependencies.

type stubAppointments struct {
	rec *model.Appointment
}

func (s *stubAppointments) GetByID(ctx context.Context, id uint64) (*model.Appointment, error) {
	if s.rec == nil || s.rec.ID != id {
		return nil, sql.ErrNoRows
	}
	cp := *s.rec
	return &cp, nil
}

func (s *stubAppointments) ConfirmIfPending(ctx context.Context, id uint64) (bool, error) {
	if s.rec.Status != model.StatusPending {
		return false, nil
	}
	s.rec.Status = model.StatusConfirmed
	return true, nil
}

func (s *stubAppointments) ReleaseIfPending(ctx context.Context, id uint64) (bool, error) {
	if s.rec.Status != model.StatusPending {
		return false, nil
	}
	s.rec.Status = model.StatusCancelled
	return true, nil
}

type stubPayments struct {
	created []*model.Payment
}

func (s *stubPayments) ExistsByAppointment(ctx context.Context, id uint64) (bool, error) {
	return len(s.created) > 0, nil
}

func (s *stubPayments) Create(ctx context.Context, p *model.Payment) error {
	s.created = append(s.created, p)
	return nil
}

type stubServices struct{}

func (stubServices) GetByID(ctx context.Context, id uint64) (*model.Service, error) {
	return &model.Service{ID: id, Name: "Dental Cleaning", PriceCents: 120000}, nil
}

type stubGateway struct {
	verdict gateway.Verdict
}

func (s stubGateway) GetSessionStatus(ctx context.Context, sessionID string) (*gateway.SessionStatus, error) {
	return &gateway.SessionStatus{Verdict: s.verdict, TransactionRef: "pay_test", Method: "gcash"}, nil
}

func newWebhookFixture(verdict gateway.Verdict) (*PaymentHandler, *stubAppointments, *stubPayments) {
	session := "cs_test"
	appts := &stubAppointments{rec: &model.Appointment{
		ID:               42,
		PatientID:        7,
		ServiceID:        2,
		ScheduleID:       3,
		Status:           model.StatusPending,
		GatewaySessionID: &session,
	}}
	payments := &stubPayments{}
	rec := booking.NewReconciler(appts, payments, stubServices{}, stubGateway{verdict: verdict}, nil, nil)
	return NewPaymentHandler(testWebhookSecret, rec, nil), appts, payments
}

func webhookPayload(t *testing.T, eventType string, appointmentID string) []byte {
	t.Helper()
	evt := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"type": eventType,
				"data": map[string]any{
					"attributes": map[string]any{
						"metadata": map[string]string{"appointment_id": appointmentID},
					},
				},
			},
		},
	}
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return body
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *PaymentHandler, payload []byte, signature string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(string(payload)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("Paymongo-Signature", signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = h.Webhook(c)
	return rec
}

func TestWebhook_RejectsMissingSignature(t *testing.T) {
	h, appts, payments := newWebhookFixture(gateway.VerdictPaid)
	payload := webhookPayload(t, "payment.paid", "42")

	rec := postWebhook(h, payload, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.StatusPending, appts.rec.Status, "no state change on auth failure")
	assert.Empty(t, payments.created)
}

func TestWebhook_RejectsTamperedPayload(t *testing.T) {
	h, appts, _ := newWebhookFixture(gateway.VerdictPaid)
	payload := webhookPayload(t, "payment.paid", "42")
	signature := sign(payload, testWebhookSecret)

	tampered := webhookPayload(t, "payment.paid", "43")
	rec := postWebhook(h, tampered, signature)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.StatusPending, appts.rec.Status)
}

func TestWebhook_PaidEventConfirms(t *testing.T) {
	h, appts, payments := newWebhookFixture(gateway.VerdictPaid)
	payload := webhookPayload(t, "payment.paid", "42")

	rec := postWebhook(h, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusConfirmed, appts.rec.Status)
	require.Len(t, payments.created, 1)
	assert.Equal(t, uint64(42), payments.created[0].AppointmentID)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp["outcome"])
}

func TestWebhook_FailedEventReleasesSlot(t *testing.T) {
	h, appts, payments := newWebhookFixture(gateway.VerdictFailed)
	payload := webhookPayload(t, "checkout_session.payment.failed", "42")

	rec := postWebhook(h, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
	// A verified failure frees the slot immediately, without waiting
	// for the expiry sweep.
	assert.Equal(t, model.StatusCancelled, appts.rec.Status)
	assert.Empty(t, payments.created)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp["outcome"])
}

func TestWebhook_RedeliveryAcksWithoutDuplicates(t *testing.T) {
	h, _, payments := newWebhookFixture(gateway.VerdictPaid)
	payload := webhookPayload(t, "payment.paid", "42")
	signature := sign(payload, testWebhookSecret)

	first := postWebhook(h, payload, signature)
	second := postWebhook(h, payload, signature)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, payments.created, 1)
}

func TestWebhook_IgnoresUnrelatedEventTypes(t *testing.T) {
	h, appts, payments := newWebhookFixture(gateway.VerdictPaid)
	payload := webhookPayload(t, "source.chargeable", "42")

	rec := postWebhook(h, payload, sign(payload, testWebhookSecret))
	// Acknowledge with 200 so the gateway stops retrying.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusPending, appts.rec.Status)
	assert.Empty(t, payments.created)
}

func TestWebhook_UnknownAppointmentIsAcked(t *testing.T) {
	h, _, _ := newWebhookFixture(gateway.VerdictPaid)
	payload := webhookPayload(t, "payment.paid", "404")

	rec := postWebhook(h, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp["outcome"])
}

func TestSuccessRedirect_VerifiesWithGateway(t *testing.T) {
	tests := []struct {
		name       string
		verdict    gateway.Verdict
		wantStatus string
	}{
		{"paid verdict confirms", gateway.VerdictPaid, "confirmed"},
		{"pending verdict stays neutral", gateway.VerdictPending, "processing"},
		{"failed verdict reports failure", gateway.VerdictFailed, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newWebhookFixture(tt.verdict)

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/v1/payments/success?appointment_id=42", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			require.NoError(t, h.Success(c))

			assert.Equal(t, http.StatusOK, rec.Code)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp["status"])
		})
	}
}

func TestSuccessRedirect_AloneNeverConfirms(t *testing.T) {
	// Hitting the success URL is client-reachable without paying; only
	// the gateway's own verdict may confirm.
	h, appts, payments := newWebhookFixture(gateway.VerdictPending)

	e := echo.New()
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/payments/success?appointment_id=42", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, h.Success(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, model.StatusPending, appts.rec.Status)
	assert.Empty(t, payments.created)
}

func TestCancelledRedirect_LeavesClaimPending(t *testing.T) {
	h, appts, _ := newWebhookFixture(gateway.VerdictPending)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/payments/cancelled?appointment_id=42", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.Cancelled(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	// The sweeper, not the redirect, releases an abandoned claim.
	assert.Equal(t, model.StatusPending, appts.rec.Status)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, fmt.Sprintf("%v", resp["status"]), "cancelled")
}
