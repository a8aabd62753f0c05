package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaydesk/relaydesk/db"
	"github.com/relaydesk/relaydesk/services"
)

// ChannelHandler serves /v1/channels and the read-only /v1/channel-types
// catalog.
type ChannelHandler struct {
	Channels *services.ChannelService
	PageSize int
}

func NewChannelHandler(channels *services.ChannelService, pageSize int) *ChannelHandler {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ChannelHandler{Channels: channels, PageSize: pageSize}
}

// List streams all channels matching the optional filter query string.
func (h *ChannelHandler) List(c *gin.Context) {
	where, args, ok := parseListFilter(c, services.ChannelFilterColumns)
	if !ok {
		return
	}
	streamList(c, h.PageSize, func(limit, offset int) ([]interface{}, error) {
		channels, err := h.Channels.List(where, args, limit, offset)
		if err != nil {
			return nil, err
		}
		rows := make([]interface{}, len(channels))
		for i := range channels {
			rows[i] = channels[i]
		}
		return rows, nil
	})
}

// Get returns a single channel by its UUID.
func (h *ChannelHandler) Get(c *gin.Context) {
	if !rejectFilter(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	channel, err := h.Channels.Get(id)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, channel)
}

// Create handles POST without an identifier.
func (h *ChannelHandler) Create(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	var req db.ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	channel, err := h.Channels.Create(req)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.Header("Location", resourceLocation("channels", channel.UUID))
	c.JSON(http.StatusCreated, channel)
}

// Replace handles POST with an identifier.
func (h *ChannelHandler) Replace(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	var req db.ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	moved, err := h.Channels.Replace(id, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	if moved {
		c.Header("Location", resourceLocation("channels", *req.ID))
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusNoContent)
}

// Upsert handles PUT.
func (h *ChannelHandler) Upsert(c *gin.Context) {
	if !rejectFilter(c) || !requireJSONContent(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	var req db.ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "the request body is not valid JSON for this endpoint")
		return
	}
	created, err := h.Channels.Upsert(id, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	if created {
		c.Header("Location", resourceLocation("channels", id))
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete removes a channel; channels still used as a default channel are
// rejected.
func (h *ChannelHandler) Delete(c *gin.Context) {
	if !rejectFilter(c) {
		return
	}
	id, ok := identifierParam(c)
	if !ok {
		return
	}
	if err := h.Channels.Delete(id); err != nil {
		serviceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListTypes streams the available channel type catalog. The catalog is not
// filterable.
func (h *ChannelHandler) ListTypes(c *gin.Context) {
	if c.Request.URL.RawQuery != "" {
		apiError(c, http.StatusBadRequest, "the channel type catalog cannot be filtered")
		return
	}
	streamList(c, h.PageSize, func(limit, offset int) ([]interface{}, error) {
		types, err := h.Channels.ListTypes(limit, offset)
		if err != nil {
			return nil, err
		}
		rows := make([]interface{}, len(types))
		for i := range types {
			rows[i] = types[i]
		}
		return rows, nil
	})
}
