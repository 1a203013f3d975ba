package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/districtsmiles/appointment-booking/internal/booking"
	"github.com/districtsmiles/appointment-booking/internal/config"
	"github.com/districtsmiles/appointment-booking/internal/gateway"
	"github.com/districtsmiles/appointment-booking/internal/handler"
	"github.com/districtsmiles/appointment-booking/internal/repository"
)

// cachedHeader marks responses that passed through the stand-in cache
// middleware, so the test can see exactly which routes it fronts.
const cachedHeader = "X-Cached"

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	appointments := repository.NewAppointmentRepo(db)
	schedules := repository.NewScheduleRepo(db)
	services := repository.NewServiceRepo(db)
	payments := repository.NewPaymentRepo(db)

	gw := gateway.NewPayMongoService("sk_test", nil)
	rec := booking.NewReconciler(appointments, payments, services, gw, nil, nil)

	cfg := config.Config{JWTSecret: "test-secret"}
	browse := handler.NewBrowseHandler(schedules, services)
	appts := handler.NewAppointmentHandler(cfg, appointments, schedules, services, payments, gw)
	pay := handler.NewPaymentHandler("whsec_test", rec, nil)

	cacheStandIn := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(cachedHeader, "1")
			return c.NoContent(http.StatusNoContent)
		}
	}

	e := echo.New()
	RegisterPublic(e, browse, cacheStandIn)
	RegisterPatient(e, appts, cfg.JWTSecret)
	RegisterPayments(e, pay)
	return e
}

// Responses on the public browse routes carry no user identity, so
// they are the only routes the response cache may front.  A cache
// keyed on route + query in front of per-user or payment endpoints
// would leak one patient's data to another and skip reconciliation
// on redirect retries.
func TestResponseCacheFrontsOnlyPublicRoutes(t *testing.T) {
	e := newTestServer(t)

	for _, path := range []string{
		"/v1/services",
		"/v1/schedules",
		"/v1/availability?date=2026-09-15",
		"/v1/availability/summary?from=2026-09-14&to=2026-09-16",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, "1", rec.Header().Get(cachedHeader), path)
	}

	for _, path := range []string{
		"/v1/my-appointments",
		"/v1/appointments/5",
		"/v1/payments/success?appointment_id=5",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get(cachedHeader), path)
	}
}
