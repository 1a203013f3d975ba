package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/districtsmiles/appointment-booking/internal/handler"    // import the handlers that implement business logic
	"github.com/districtsmiles/appointment-booking/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// Operations that do not require an existing session (register, login,
	// refresh).  Each of these handlers is responsible for generating or
	// exchanging tokens.
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token; refresh-access issues a new access
	// token without rotating.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts a JSON body containing a `refresh_token` or a bearer
	// token in the Authorization header and invalidates the session(s).
	g.POST("/logout", a.Logout)

	// Routes that require a valid access token.  Both roles may call /v1/me.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("STAFF", "PATIENT"))
	auth.GET("/me", a.Me)

	// Alias kept at the top level so clients can log out with only a
	// refresh token in the body.
	e.POST("/v1/logout", a.Logout)
}

// RegisterPublic registers unauthenticated browse endpoints.  Guests can
// inspect the treatment catalog, the slot catalog and per-date
// availability before deciding to register.  The optional middleware is
// where the response cache attaches: these routes carry no user
// identity or path parameters, so caching on route + query is safe
// here and nowhere else.
func RegisterPublic(e *echo.Echo, b *handler.BrowseHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1", mw...)
	g.GET("/services", b.ListServices)
	g.GET("/schedules", b.ListSchedules)
	g.GET("/availability", b.Availability)
	g.GET("/availability/summary", b.AvailabilitySummary)
}

// RegisterPatient registers patient-scoped endpoints under /v1.  All routes
// require a valid JWT and the PATIENT role.  Patients book appointments,
// view their own bookings, cancel and reschedule.
func RegisterPatient(e *echo.Echo, h *handler.AppointmentHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("PATIENT"),
	)
	g.POST("/appointments", h.Create)
	g.GET("/my-appointments", h.List)
	g.GET("/appointments/:id", h.Get)
	g.DELETE("/appointments/:id", h.Cancel)
	g.PATCH("/appointments/:id", h.Reschedule)
}

// RegisterPayments registers the payment callback endpoints.  None of them
// carry a JWT: the webhook authenticates with an HMAC signature over the
// raw body, and the redirect endpoints are landing pages the gateway sends
// the patient's browser to.  Neither path trusts its caller; both verify
// payment state with the gateway before changing anything.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler) {
	e.POST("/v1/payments/webhook", h.Webhook)
	e.GET("/v1/payments/success", h.Success)
	e.GET("/v1/payments/cancelled", h.Cancelled)
}

// RegisterStaff registers STAFF-scoped endpoints under /v1/staff.
// All routes require a valid JWT and the STAFF role.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	g := e.Group(
		"/v1/staff",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("STAFF"),
	)
	g.GET("/appointments", h.ListByDate)
	g.POST("/appointments/:id/complete", h.Complete)
	g.GET("/appointments/:id/payment", h.Payment)
}
