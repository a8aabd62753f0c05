package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaydesk/relaydesk/db"
	"github.com/relaydesk/relaydesk/services"
)

// ContactHandler serves /v1/contacts.
type ContactHandler struct {
	Contacts *services.ContactService
	PageSize int
}

func NewContactHandler(contacts *services.ContactService, pageSize int) *ContactHandler {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ContactHandler{Contacts: contacts, PageSize: pageSize}
}

// List streams all contacts matching the optional filter query string.
func (h *ContactHandler) List(c *gin.Context) {
	where, args, ok := parseListFilter(c, services.ContactFilterColumns)
	if !ok {
		return
	}
	streamList(c, h.PageSize, func(limit, offset int) ([]interface{}, error) {
		contacts, err := h.Contacts.List(where, args, limit, offset)
		if err != nil {
			return nil, err
		}
		rows := make([]interface{}, len(contacts))
		for i := range contacts {
			rows[i] = contacts[i]
		}
		return rows, nil
	})
}

// Get returns a single contact by its UUID.
func (h *ContactHandler) Get(c *gin.Context) {
	if !rejectFilter(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	contact, err := h.Contacts.Get(id)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// Create handles POST without an identifier: a new contact under the
// payload's own id.
func (h *ContactHandler) Create(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	var req db.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	contact, err := h.Contacts.Create(req)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.Header("Location", resourceLocation("contacts", contact.UUID))
	c.JSON(http.StatusCreated, contact)
}

// Replace handles POST with an identifier: full replacement of an existing
// contact, optionally moving it to the payload's identifier.
func (h *ContactHandler) Replace(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	var req db.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	moved, err := h.Contacts.Replace(id, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	if moved {
		c.Header("Location", resourceLocation("contacts", *req.ID))
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusNoContent)
}

// Upsert handles PUT: create the contact if absent, replace it otherwise.
func (h *ContactHandler) Upsert(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	var req db.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	created, err := h.Contacts.Upsert(id, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	if created {
		c.Header("Location", resourceLocation("contacts", id))
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete removes a contact and its dependent rows.
func (h *ContactHandler) Delete(c *gin.Context) {
	if !rejectFilter(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	if err := h.Contacts.Delete(id); err != nil {
		serviceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
