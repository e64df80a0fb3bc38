package blobstore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vetdesk/clinic/internal/platform/auth"
)

// BlobHandler serves stored attachments to clinic staff and to the user who
// uploaded them.
type BlobHandler struct {
	store BlobStore
}

func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/blobs/:id/metadata", h.GetMetadata)
	g.GET("/blobs/:id", h.Download)
}

func (h *BlobHandler) Download(c echo.Context) error {
	ctx := c.Request().Context()
	meta, err := h.store.GetMetadata(ctx, c.Param("id"))
	if err != nil {
		return blobError(err)
	}
	if err := authorize(c, meta); err != nil {
		return err
	}

	rc, meta, err := h.store.Download(ctx, meta.ID)
	if err != nil {
		return blobError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *BlobHandler) GetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return blobError(err)
	}
	if err := authorize(c, meta); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meta)
}

// authorize hides other users' blobs behind a 404 so ids cannot be enumerated.
func authorize(c echo.Context, meta *BlobMetadata) error {
	ctx := c.Request().Context()
	if auth.IsStaff(ctx) || meta.OwnerID == auth.UserIDFromContext(ctx) {
		return nil
	}
	return echo.NewHTTPError(http.StatusNotFound, ErrBlobNotFound.Error())
}

func blobError(err error) error {
	if errors.Is(err, ErrBlobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
