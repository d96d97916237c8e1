package records

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes a facility's records to peers and masters over HTTP.
type Handler struct {
	svc      *Service
	facility string
}

func NewHandler(svc *Service, facilityName string) *Handler {
	return &Handler{svc: svc, facility: facilityName}
}

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Hospital string `json:"hospital"`
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	for _, k := range Kinds {
		path := "/" + string(k)
		e.GET(path, h.List(k))
		e.POST(path, h.Create(k))
		e.GET(path+"/:id", h.Get(k))
		e.PUT(path+"/:id", h.Update(k))
		e.DELETE(path+"/:id", h.Delete(k))
	}
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, Health{Status: "ok", Hospital: h.facility})
}

func (h *Handler) List(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		rows, err := h.svc.List(c.Request().Context(), kind, c.QueryParam("search"))
		if err != nil {
			return HTTPError(err)
		}
		return c.JSON(http.StatusOK, rows)
	}
}

// Create answers 200 with {<key>: id, status} to stay compatible with peers
// that only accept 200 from POST.
func (h *Handler) Create(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		e, err := NewEntity(kind)
		if err != nil {
			return HTTPError(err)
		}
		if err := c.Bind(e); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		id, err := h.svc.Create(c.Request().Context(), kind, e)
		if err != nil {
			return HTTPError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			kind.Key(): id,
			"status":   "success",
		})
	}
}

func (h *Handler) Get(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		row, err := h.svc.Get(c.Request().Context(), kind, id)
		if err != nil {
			return HTTPError(err)
		}
		return c.JSON(http.StatusOK, row)
	}
}

func (h *Handler) Update(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		e, err := NewEntity(kind)
		if err != nil {
			return HTTPError(err)
		}
		if err := c.Bind(e); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := h.svc.Update(c.Request().Context(), kind, id, e); err != nil {
			return HTTPError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "success"})
	}
}

func (h *Handler) Delete(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := h.svc.Delete(c.Request().Context(), kind, id); err != nil {
			return HTTPError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "success"})
	}
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// HTTPError maps record errors to HTTP errors.
func HTTPError(err error) error {
	var verrs ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
			"message": "validation failed",
			"errors":  verrs,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownColumn), errors.Is(err, ErrNoFields), errors.Is(err, ErrUnknownKind):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}
