package handler

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"identity-link/internal/auth"
	"identity-link/internal/auth/linkage"
	"identity-link/internal/logger"
	"identity-link/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	linkers    *linkage.Registry
	adminTypes []string
}

// NewHandler serves the records of every registered type. A caller whose
// token subject is linked to a record of one of adminTypes may create records
// of any type and destroy any record. Other callers may only create records
// of non-admin types and destroy their own record.
func NewHandler(registry *linkage.Registry, adminTypes ...string) *Handler {
	return &Handler{linkers: registry, adminTypes: adminTypes}
}

// RegisterRoutes mounts the record routes on an authenticated group.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/me", h.me)
	api.POST("/:type", h.create)
	api.DELETE("/:type/:id", h.destroy)
}

func (h *Handler) me(c *gin.Context) {
	e, ok := middleware.EntityFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.JSON(http.StatusOK, e.Fields())
}

func (h *Handler) create(c *gin.Context) {
	l, err := h.linkers.Get(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown record type"})
		return
	}

	if slices.Contains(h.adminTypes, l.Name()) {
		admin, err := h.isAdmin(c.Request.Context())
		if err != nil {
			h.fail(c, "authorize", l.Name(), err)
			return
		}
		if !admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
	}

	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	e := l.Store().New()
	for field, value := range req {
		if field == l.Declaration().ExternalIDField {
			c.JSON(http.StatusBadRequest, gin.H{"error": "field " + field + " is set by the directory link"})
			return
		}
		if field == "id" || !e.Set(field, value) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field " + field})
			return
		}
	}

	if err := l.Create(c.Request.Context(), e); err != nil {
		h.fail(c, "create", l.Name(), err)
		return
	}

	logger.Info("record created", map[string]any{
		"type":        l.Name(),
		"external_id": l.ExternalID(e),
	})
	c.JSON(http.StatusCreated, e.Fields())
}

func (h *Handler) destroy(c *gin.Context) {
	l, err := h.linkers.Get(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown record type"})
		return
	}

	ctx := c.Request.Context()
	e, err := l.Store().FindBy(ctx, "id", c.Param("id"))
	if err != nil {
		h.fail(c, "find", l.Name(), err)
		return
	}

	sub, _ := middleware.SubjectFromContext(ctx)
	if own := l.ExternalID(e); own == "" || own != sub {
		admin, err := h.isAdmin(ctx)
		if err != nil {
			h.fail(c, "authorize", l.Name(), err)
			return
		}
		if !admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
	}

	if err := l.Destroy(ctx, e); err != nil {
		h.fail(c, "destroy", l.Name(), err)
		return
	}

	logger.Info("record destroyed", map[string]any{
		"type": l.Name(),
		"id":   c.Param("id"),
	})
	c.Status(http.StatusNoContent)
}

// isAdmin reports whether the caller's subject is linked to a record of an
// admin type.
func (h *Handler) isAdmin(ctx context.Context) (bool, error) {
	sub, ok := middleware.SubjectFromContext(ctx)
	if !ok {
		return false, nil
	}
	for _, name := range h.adminTypes {
		l, err := h.linkers.Get(name)
		if err != nil {
			return false, err
		}
		_, err = l.FindByExternalID(ctx, sub)
		switch {
		case err == nil:
			return true, nil
		case !errors.Is(err, auth.ErrNotFound):
			return false, err
		}
	}
	return false, nil
}

func (h *Handler) fail(c *gin.Context, op, typ string, err error) {
	var (
		verr *auth.ValidationError
		perr *auth.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, auth.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &perr):
		logger.Error("remote "+op+" failed", map[string]any{
			"type":  typ,
			"error": err.Error(),
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "directory request failed"})
	default:
		logger.Error(op+" failed", map[string]any{
			"type":  typ,
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
