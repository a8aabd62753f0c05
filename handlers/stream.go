package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultPageSize is how many rows a list response fetches per database
// round-trip while streaming.
const DefaultPageSize = 500

// listPage fetches one page of rows ready for JSON serialization.
type listPage func(limit, offset int) ([]interface{}, error)

// streamList emits a result set as one JSON array without ever materializing
// it in memory: headers go out first, then pages of pageSize rows are fetched
// and written until a page comes back empty.
//
// Once the first byte is written the status line is out, so a mid-stream
// fetch error can only be signalled by truncating the body; the client sees
// unterminated JSON instead of a response that looks complete.
func streamList(c *gin.Context, pageSize int, fetch listPage) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	c.Header("Content-Type", "application/json")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	w := c.Writer
	if _, err := w.Write([]byte("[")); err != nil {
		return
	}

	first := true
	for offset := 0; ; offset += pageSize {
		rows, err := fetch(pageSize, offset)
		if err != nil {
			log.Printf("list stream aborted at offset %d: %v", offset, err)
			return
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			if !first {
				if _, err := w.Write([]byte(",\n")); err != nil {
					return
				}
			}
			first = false

			buf, err := json.Marshal(row)
			if err != nil {
				log.Printf("list stream aborted, row not serializable: %v", err)
				return
			}
			if _, err := w.Write(buf); err != nil {
				return
			}
		}
		w.Flush()
	}

	_, _ = w.Write([]byte("]"))
}
