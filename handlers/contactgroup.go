package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaydesk/relaydesk/db"
	"github.com/relaydesk/relaydesk/services"
)

// ContactgroupHandler serves /v1/contact-groups.
type ContactgroupHandler struct {
	Groups   *services.ContactgroupService
	PageSize int
}

func NewContactgroupHandler(groups *services.ContactgroupService, pageSize int) *ContactgroupHandler {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ContactgroupHandler{Groups: groups, PageSize: pageSize}
}

// List streams all contact groups matching the optional filter query string.
func (h *ContactgroupHandler) List(c *gin.Context) {
	where, args, ok := parseListFilter(c, services.ContactgroupFilterColumns)
	if !ok {
		return
	}
	streamList(c, h.PageSize, func(limit, offset int) ([]interface{}, error) {
		groups, err := h.Groups.List(where, args, limit, offset)
		if err != nil {
			return nil, err
		}
		rows := make([]interface{}, len(groups))
		for i := range groups {
			rows[i] = groups[i]
		}
		return rows, nil
	})
}

// Get returns a single contact group by its UUID.
func (h *ContactgroupHandler) Get(c *gin.Context) {
	if !rejectFilter(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	group, err := h.Groups.Get(id)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// Create handles POST without an identifier.
func (h *ContactgroupHandler) Create(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	var req db.ContactgroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	group, err := h.Groups.Create(req)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.Header("Location", resourceLocation("contact-groups", group.UUID))
	c.JSON(http.StatusCreated, group)
}

// Replace handles POST with an identifier.
func (h *ContactgroupHandler) Replace(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	var req db.ContactgroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	moved, err := h.Groups.Replace(id, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	if moved {
		c.Header("Location", resourceLocation("contact-groups", *req.ID))
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusNoContent)
}

// Upsert handles PUT.
func (h *ContactgroupHandler) Upsert(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	var req db.ContactgroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	created, err := h.Groups.Upsert(id, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	if created {
		c.Header("Location", resourceLocation("contact-groups", id))
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete removes a contact group and its membership rows.
func (h *ContactgroupHandler) Delete(c *gin.Context) {
	if !rejectFilter(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	if err := h.Groups.Delete(id); err != nil {
		serviceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
