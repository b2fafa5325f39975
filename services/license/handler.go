package license

import (
	"net/http"

	"licensing-controlplane/pkg/db/pagination"
	"licensing-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{service: svc}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/licenses", h.List)

	g := r.Group("/v1/clients/:key/licenses")
	g.GET("", h.ListByClient)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		_ = c.Error(errutil.BadRequest("invalid filter", err))
		return
	}
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	licenses, info, err := h.service.List(c.Request.Context(), f, page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"licenses": toResponses(licenses), "page": info})
}

func (h *Handler) ListByClient(c *gin.Context) {
	licenses, err := h.service.ListByClient(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"licenses": toResponses(licenses)})
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.Create(c.Request.Context(), c.Param("key"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out.ToResponse())
}

func (h *Handler) Get(c *gin.Context) {
	out, err := h.service.Get(c.Request.Context(), c.Param("key"), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out.ToResponse())
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.Update(c.Request.Context(), c.Param("key"), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out.ToResponse())
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("key"), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func toResponses(licenses []*License) []*Response {
	out := make([]*Response, 0, len(licenses))
	for _, l := range licenses {
		out = append(out, l.ToResponse())
	}
	return out
}
