package federation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/carenet/carenet/internal/domain/records"
	"github.com/carenet/carenet/internal/platform/export"
	"github.com/carenet/carenet/internal/platform/facility"
	"github.com/carenet/carenet/pkg/pagination"
)

// Handler serves the master API over an Engine.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/view/:kind", h.View)
	api.GET("/view/:kind/export", h.Export)
	api.POST("/view/:kind", h.Insert)
	api.PUT("/view/:kind/:display_id", h.Update)
	api.DELETE("/view/:kind/:display_id", h.Delete)
	api.GET("/peers", h.ListPeers)
	api.POST("/peers", h.RegisterPeer)
}

type viewResponse struct {
	*pagination.Response
	Kind     records.Kind `json:"kind"`
	Facility string       `json:"facility"`
	Peers    []PeerStatus `json:"peers"`
}

func (h *Handler) View(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	search := c.QueryParam("search")
	view, err := h.engine.Search(c.Request().Context(), kind, search)
	if err != nil {
		return HTTPError(err)
	}

	pg := pagination.FromContext(c)
	total := len(view.Rows)
	start, end := pg.Window(total)
	resp := pagination.NewResponse(view.Rows[start:end], total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, total, url.Values{"search": {search}})

	return c.JSON(http.StatusOK, viewResponse{
		Response: resp,
		Kind:     kind,
		Facility: h.engine.FacilityName(),
		Peers:    view.Peers,
	})
}

func (h *Handler) Export(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	view, err := h.engine.Search(c.Request().Context(), kind, c.QueryParam("search"))
	if err != nil {
		return HTTPError(err)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, view.Table()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "export failed").SetInternal(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", string(kind)+".xlsx"))
	return c.Blob(http.StatusOK, export.ContentType, buf.Bytes())
}

func (h *Handler) Insert(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	ent, err := records.NewEntity(kind)
	if err != nil {
		return HTTPError(err)
	}
	if err := c.Bind(ent); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.engine.Insert(c.Request().Context(), kind, ent)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"display_id": id,
		"facility":   h.engine.FacilityName(),
		"status":     "success",
	})
}

type updateRequest struct {
	Facility string          `json:"facility"`
	Fields   json.RawMessage `json:"fields"`
}

func (h *Handler) Update(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	id, err := displayIDParam(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "fields is required")
	}
	ent, err := records.NewEntity(kind)
	if err != nil {
		return HTTPError(err)
	}
	if err := json.Unmarshal(req.Fields, ent); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid fields: "+err.Error())
	}

	ref := RowRef{Facility: req.Facility, ID: id}
	if err := h.engine.Update(c.Request().Context(), kind, ref, ent); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) Delete(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	id, err := displayIDParam(c)
	if err != nil {
		return err
	}
	ref := RowRef{Facility: c.QueryParam("facility"), ID: id}
	if err := h.engine.Delete(c.Request().Context(), kind, ref); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPeers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"master": h.engine.Master(),
		"peers":  h.engine.Peers(c.Request().Context()),
	})
}

type registerRequest struct {
	URL string `json:"url"`
}

func (h *Handler) RegisterPeer(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.engine.RegisterRemote(c.Request().Context(), req.URL)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, st)
}

func kindParam(c echo.Context) (records.Kind, error) {
	kind, err := records.ParseKind(c.Param("kind"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return kind, nil
}

func displayIDParam(c echo.Context) (facility.DisplayID, error) {
	id, err := facility.ParseDisplayID(c.Param("display_id"))
	if err != nil {
		return facility.DisplayID{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return id, nil
}

// HTTPError maps engine and record errors to HTTP errors.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrPeerExists), errors.Is(err, ErrPeerConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrPeerUnreachable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrInvalidPeerURL):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return records.HTTPError(err)
}
