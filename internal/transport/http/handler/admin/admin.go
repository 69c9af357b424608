// Package admin serves operator endpoints over the relay request log.
package admin

import (
	"time"

	"github.com/mandalnilabja/chatrelay/internal/storage"
)

// dateLayout is the YYYY-MM-DD format used by query parameters.
const dateLayout = "2006-01-02"

// Handlers holds the dependencies for admin HTTP handlers.
type Handlers struct {
	Storage   storage.RequestLogStore
	StartTime time.Time
}

// New creates a new instance of admin handlers.
func New(store storage.RequestLogStore, startTime time.Time) *Handlers {
	return &Handlers{
		Storage:   store,
		StartTime: startTime,
	}
}
