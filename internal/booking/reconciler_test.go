package booking

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/districtsmiles/appointment-booking/internal/gateway"
	"github.com/districtsmiles/appointment-booking/internal/model"
	"github.com/districtsmiles/appointment-booking/internal/repository"
)

// fakeAppointments mimics the conditional-update semantics of the real
// repository under a mutex, so reconciliation races behave like they
// would against the database.
type fakeAppointments struct {
	mu   sync.Mutex
	rows map[uint64]*model.Appointment
}

func newFakeAppointments(recs ...*model.Appointment) *fakeAppointments {
	f := &fakeAppointments{rows: make(map[uint64]*model.Appointment)}
	for _, r := range recs {
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeAppointments) GetByID(ctx context.Context, id uint64) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (f *fakeAppointments) casStatus(id uint64, from, to model.AppointmentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (f *fakeAppointments) ConfirmIfPending(ctx context.Context, id uint64) (bool, error) {
	return f.casStatus(id, model.StatusPending, model.StatusConfirmed)
}

func (f *fakeAppointments) ReleaseIfPending(ctx context.Context, id uint64) (bool, error) {
	return f.casStatus(id, model.StatusPending, model.StatusCancelled)
}

func (f *fakeAppointments) status(id uint64) model.AppointmentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

type fakePayments struct {
	mu   sync.Mutex
	rows map[uint64]*model.Payment
}

func newFakePayments() *fakePayments {
	return &fakePayments{rows: make(map[uint64]*model.Payment)}
}

func (f *fakePayments) ExistsByAppointment(ctx context.Context, id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakePayments) Create(ctx context.Context, p *model.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[p.AppointmentID]; ok {
		return repository.ErrAlreadyPaid
	}
	f.rows[p.AppointmentID] = p
	return nil
}

func (f *fakePayments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeServices struct{}

func (fakeServices) GetByID(ctx context.Context, id uint64) (*model.Service, error) {
	return &model.Service{ID: id, Name: "Oral Prophylaxis", PriceCents: 150000}, nil
}

type fakeGateway struct {
	status *gateway.SessionStatus
	err    error
}

func (f fakeGateway) GetSessionStatus(ctx context.Context, sessionID string) (*gateway.SessionStatus, error) {
	return f.status, f.err
}

type countingPublisher struct {
	mu sync.Mutex
	n  int
}

func (p *countingPublisher) PublishAppointmentConfirmed(ctx context.Context, id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return nil
}

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func sessionID(s string) *string { return &s }

func pendingAppointment(id uint64) *model.Appointment {
	return &model.Appointment{
		ID:               id,
		PatientID:        7,
		ServiceID:        2,
		ScheduleID:       3,
		Status:           model.StatusPending,
		GatewaySessionID: sessionID("cs_test"),
	}
}

func paidGateway() fakeGateway {
	return fakeGateway{status: &gateway.SessionStatus{
		Verdict:        gateway.VerdictPaid,
		TransactionRef: "pay_abc",
		Method:         "gcash",
	}}
}

func TestReconcile_PaidVerdictConfirms(t *testing.T) {
	appts := newFakeAppointments(pendingAppointment(1))
	payments := newFakePayments()
	pub := &countingPublisher{}
	rec := NewReconciler(appts, payments, fakeServices{}, paidGateway(), pub, nil)

	result, err := rec.Reconcile(context.Background(), 1, ChannelWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	require.NotNil(t, result.Payment)
	assert.Equal(t, uint32(150000), result.Payment.AmountCents)
	assert.Equal(t, "pay_abc", result.Payment.TransactionRef)
	assert.Equal(t, model.StatusConfirmed, appts.status(1))
	assert.Equal(t, 1, pub.count())
}

func TestReconcile_DuplicateDeliveryShortCircuits(t *testing.T) {
	appts := newFakeAppointments(pendingAppointment(1))
	payments := newFakePayments()
	rec := NewReconciler(appts, payments, fakeServices{}, paidGateway(), nil, nil)

	first, err := rec.Reconcile(context.Background(), 1, ChannelRedirect)
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, first.Outcome)

	// Webhook redelivery after the redirect already confirmed.
	second, err := rec.Reconcile(context.Background(), 1, ChannelWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyConfirmed, second.Outcome)
	assert.Equal(t, 1, payments.count())
}

func TestReconcile_ChannelOrderDoesNotMatter(t *testing.T) {
	for _, order := range [][]Channel{
		{ChannelRedirect, ChannelWebhook},
		{ChannelWebhook, ChannelRedirect},
	} {
		appts := newFakeAppointments(pendingAppointment(1))
		payments := newFakePayments()
		rec := NewReconciler(appts, payments, fakeServices{}, paidGateway(), nil, nil)

		outcomes := make([]Outcome, 0, 2)
		for _, ch := range order {
			result, err := rec.Reconcile(context.Background(), 1, ch)
			require.NoError(t, err)
			outcomes = append(outcomes, result.Outcome)
		}
		assert.Equal(t, []Outcome{OutcomeConfirmed, OutcomeAlreadyConfirmed}, outcomes)
		assert.Equal(t, 1, payments.count())
		assert.Equal(t, model.StatusConfirmed, appts.status(1))
	}
}

func TestReconcile_ConcurrentDeliveriesCreateOnePayment(t *testing.T) {
	appts := newFakeAppointments(pendingAppointment(1))
	payments := newFakePayments()
	pub := &countingPublisher{}
	rec := NewReconciler(appts, payments, fakeServices{}, paidGateway(), pub, nil)

	const n = 16
	var wg sync.WaitGroup
	confirmed := make(chan Outcome, n)
	for i := 0; i < n; i++ {
		ch := ChannelWebhook
		if i%2 == 0 {
			ch = ChannelRedirect
		}
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			result, err := rec.Reconcile(context.Background(), 1, ch)
			if err == nil {
				confirmed <- result.Outcome
			}
		}(ch)
	}
	wg.Wait()
	close(confirmed)

	wins := 0
	for o := range confirmed {
		if o == OutcomeConfirmed {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one delivery may win the confirmation")
	assert.Equal(t, 1, payments.count())
	assert.Equal(t, model.StatusConfirmed, appts.status(1))
}

func TestReconcile_FailedVerdictReleasesSlot(t *testing.T) {
	appts := newFakeAppointments(pendingAppointment(1))
	gw := fakeGateway{status: &gateway.SessionStatus{Verdict: gateway.VerdictFailed}}
	rec := NewReconciler(appts, newFakePayments(), fakeServices{}, gw, nil, nil)

	result, err := rec.Reconcile(context.Background(), 1, ChannelWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, model.StatusCancelled, appts.status(1))
}

// racingAppointments lands a concurrent confirmation just before the
// release, so the failure path always loses its conditional update.
type racingAppointments struct {
	*fakeAppointments
}

func (r racingAppointments) ReleaseIfPending(ctx context.Context, id uint64) (bool, error) {
	_, _ = r.fakeAppointments.casStatus(id, model.StatusPending, model.StatusConfirmed)
	return r.fakeAppointments.ReleaseIfPending(ctx, id)
}

func TestReconcile_LostReleaseReportsSettledState(t *testing.T) {
	appts := racingAppointments{newFakeAppointments(pendingAppointment(1))}
	gw := fakeGateway{status: &gateway.SessionStatus{Verdict: gateway.VerdictFailed}}
	rec := NewReconciler(appts, newFakePayments(), fakeServices{}, gw, nil, nil)

	result, err := rec.Reconcile(context.Background(), 1, ChannelWebhook)
	require.NoError(t, err)
	// The appointment ended CONFIRMED, so the caller must not be told
	// the slot was released.
	assert.Equal(t, OutcomeAlreadyConfirmed, result.Outcome)
	assert.Equal(t, model.StatusConfirmed, appts.status(1))
}

func TestReconcile_PendingVerdictChangesNothing(t *testing.T) {
	appts := newFakeAppointments(pendingAppointment(1))
	gw := fakeGateway{status: &gateway.SessionStatus{Verdict: gateway.VerdictPending}}
	rec := NewReconciler(appts, newFakePayments(), fakeServices{}, gw, nil, nil)

	result, err := rec.Reconcile(context.Background(), 1, ChannelRedirect)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, result.Outcome)
	assert.Equal(t, model.StatusPending, appts.status(1))
}

func TestReconcile_GatewayErrorLeavesPending(t *testing.T) {
	appts := newFakeAppointments(pendingAppointment(1))
	gw := fakeGateway{err: gateway.ErrGatewayUnavailable}
	rec := NewReconciler(appts, newFakePayments(), fakeServices{}, gw, nil, nil)

	_, err := rec.Reconcile(context.Background(), 1, ChannelWebhook)
	assert.ErrorIs(t, err, gateway.ErrGatewayUnavailable)
	assert.Equal(t, model.StatusPending, appts.status(1))
}

func TestReconcile_TerminalMismatch(t *testing.T) {
	appt := pendingAppointment(1)
	appt.Status = model.StatusFailedTimeout
	appts := newFakeAppointments(appt)
	rec := NewReconciler(appts, newFakePayments(), fakeServices{}, paidGateway(), nil, nil)

	// Payment arrived after the sweeper released the slot; it cannot be
	// applied any more.
	result, err := rec.Reconcile(context.Background(), 1, ChannelWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTerminalMismatch, result.Outcome)
	assert.Equal(t, model.StatusFailedTimeout, appts.status(1))
}

func TestReconcile_UnknownAppointment(t *testing.T) {
	rec := NewReconciler(newFakeAppointments(), newFakePayments(), fakeServices{}, paidGateway(), nil, nil)

	result, err := rec.Reconcile(context.Background(), 404, ChannelWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, result.Outcome)
}
