package handler

import (
	"net/http" // HTTP status codes
	"time"     // date-range bounds

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/districtsmiles/appointment-booking/internal/repository"
)

// BrowseHandler serves the public, read-only catalog endpoints: the
// treatment list and slot availability per date.  Availability is a
// display convenience derived from the appointments table; the slot
// claim re-checks occupancy under a lock, so these responses are
// allowed to be briefly stale and sit behind the response cache.
type BrowseHandler struct {
	Schedules *repository.ScheduleRepo
	Services  *repository.ServiceRepo
}

func NewBrowseHandler(schedules *repository.ScheduleRepo, services *repository.ServiceRepo) *BrowseHandler {
	if schedules == nil || services == nil {
		panic("nil repository passed to NewBrowseHandler")
	}
	return &BrowseHandler{Schedules: schedules, Services: services}
}

type servicePart struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	PriceCents uint32 `json:"price_cents"`
}

type schedulePart struct {
	ID        uint64 `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ListServices handles GET /v1/services.
func (h *BrowseHandler) ListServices(c echo.Context) error {
	services, err := h.Services.ListAll(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load services"})
	}
	items := make([]servicePart, 0, len(services))
	for _, s := range services {
		items = append(items, servicePart{ID: s.ID, Name: s.Name, PriceCents: s.PriceCents})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": items,
	})
}

// ListSchedules handles GET /v1/schedules, the full slot catalog.
func (h *BrowseHandler) ListSchedules(c echo.Context) error {
	schedules, err := h.Schedules.ListAll(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load schedules"})
	}
	items := make([]schedulePart, 0, len(schedules))
	for _, s := range schedules {
		items = append(items, schedulePart{ID: s.ID, StartTime: s.StartTime, EndTime: s.EndTime})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": items,
	})
}

// Availability handles GET /v1/availability?date=YYYY-MM-DD.  It
// returns the slots still free on the given date.
func (h *BrowseHandler) Availability(c echo.Context) error {
	dateStr := c.QueryParam("date")
	if dateStr == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date is required"})
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}
	schedules, err := h.Schedules.ListAvailableByDate(c.Request().Context(), date)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load availability"})
	}
	items := make([]schedulePart, 0, len(schedules))
	for _, s := range schedules {
		items = append(items, schedulePart{ID: s.ID, StartTime: s.StartTime, EndTime: s.EndTime})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":  dateStr,
		"items": items,
	})
}

// AvailabilitySummary handles GET /v1/availability/summary?from=&to=.
// It returns the booked-appointment count per date over the range, for
// rendering a booking calendar.  The range is capped at 92 days.
func (h *BrowseHandler) AvailabilitySummary(c echo.Context) error {
	from, err := parseDate(c.QueryParam("from"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "from must be YYYY-MM-DD"})
	}
	to, err := parseDate(c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "to must be YYYY-MM-DD"})
	}
	if to.Before(from) || to.Sub(from) > 92*24*time.Hour {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date range"})
	}
	counts, err := h.Schedules.CountBookedByDateRange(c.Request().Context(), from, to)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load availability summary"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": counts,
	})
}
