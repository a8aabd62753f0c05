package handlers

import (
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/filter"
	"github.com/relaydesk/relaydesk/services"
)

// APIVersion is the current path version prefix.
const APIVersion = "v1"

// Endpoints is the explicit routing table: endpoint name to the HTTP methods
// it implements. It drives both route registration and the Allow header on
// 405 responses, so a missing entry is a visible gap rather than a silent
// fallthrough.
var Endpoints = map[string][]string{
	"contacts":       {http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	"contact-groups": {http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	"channels":       {http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	"channel-types":  {http.MethodGet},
}

// apiError writes the uniform error envelope and aborts the request. No
// internal detail (SQL, stack traces) may ever travel through here.
func apiError(c *gin.Context, status int, format string, args ...interface{}) {
	c.Header("Content-Type", "application/json")
	c.AbortWithStatusJSON(status, gin.H{
		"status":  "error",
		"message": fmt.Sprintf(format, args...),
	})
}

// serviceError maps repository error kinds to HTTP statuses.
func serviceError(c *gin.Context, err error) {
	var validation *services.ValidationError
	var conflict *services.ConflictError
	var unprocessable *services.UnprocessableError
	switch {
	case errors.As(err, &validation):
		apiError(c, http.StatusBadRequest, "%s", validation.Message)
	case errors.As(err, &conflict):
		apiError(c, http.StatusConflict, "%s", conflict.Message)
	case errors.As(err, &unprocessable):
		apiError(c, http.StatusUnprocessableEntity, "%s", unprocessable.Message)
	case errors.Is(err, services.ErrNotFound):
		apiError(c, http.StatusNotFound, "resource not found")
	default:
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		apiError(c, http.StatusInternalServerError, "an internal error occurred")
	}
}

// RequireAPIRequest rejects requests that do not declare themselves as API
// requests via content negotiation.
func RequireAPIRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		accept := c.GetHeader("Accept")
		if !acceptsJSON(accept) {
			apiError(c, http.StatusBadRequest, "this endpoint requires 'Accept: application/json'")
			return
		}
		c.Next()
	}
}

func acceptsJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mediaType {
		case "application/json", "application/*", "*/*":
			return true
		}
	}
	return false
}

// MethodNotAllowed is the NoMethod handler; it consults the routing table to
// emit 405 with the supported method set, or 404 for unknown endpoints.
func MethodNotAllowed(c *gin.Context) {
	endpoint := pathEndpoint(c.Request.URL.Path)
	methods, ok := Endpoints[endpoint]
	if !ok {
		apiError(c, http.StatusNotFound, "resource not found")
		return
	}
	c.Header("Allow", strings.Join(methods, ", "))
	apiError(c, http.StatusMethodNotAllowed, "method %s is not allowed for /%s", c.Request.Method, endpoint)
}

func pathEndpoint(path string) string {
	path = strings.TrimPrefix(path, "/"+APIVersion+"/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		path = path[:idx]
	}
	return path
}

// requireJSONContent enforces an exact 'application/json' Content-Type on
// write requests, ignoring parameters such as charset.
func requireJSONContent(c *gin.Context) bool {
	mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if err != nil || mediaType != "application/json" {
		apiError(c, http.StatusBadRequest, "requests with a body require 'Content-Type: application/json'")
		return false
	}
	return true
}

// rejectFilter refuses a filter query string on requests that must not carry
// one: every non-GET request, and GET requests that already address a single
// resource by identifier.
func rejectFilter(c *gin.Context) bool {
	if c.Request.URL.RawQuery == "" {
		return true
	}
	if c.Request.Method == http.MethodGet {
		apiError(c, http.StatusBadRequest, "a filter cannot be combined with an identifier")
	} else {
		apiError(c, http.StatusBadRequest, "a filter is only allowed for GET requests")
	}
	return false
}

// identifierParam validates the path identifier as a well-formed UUID and
// returns it normalized to its canonical lowercase form.
func identifierParam(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "the given identifier is not a valid UUID")
		return "", false
	}
	return id.String(), true
}

// parseListFilter turns the raw query string into a SQL fragment for the
// endpoint's allow-listed columns. Nothing is executed against the database
// when the filter is rejected.
func parseListFilter(c *gin.Context, allowed map[string]string) (string, []interface{}, bool) {
	node, err := filter.Parse(c.Request.URL.RawQuery)
	if err != nil {
		apiError(c, http.StatusBadRequest, "%s", err.Error())
		return "", nil, false
	}
	where, args, err := filter.ToSQL(node, allowed)
	if err != nil {
		apiError(c, http.StatusBadRequest, "%s", err.Error())
		return "", nil, false
	}
	return where, args, true
}

func resourceLocation(endpoint, id string) string {
	return "/" + APIVersion + "/" + endpoint + "/" + id
}
