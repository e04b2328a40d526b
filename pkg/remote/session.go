package remote

import (
	"sync"

	"github.com/google/uuid"
)

// SessionHeader carries the client session id on every request so the
// server can correlate jobs and notifications from one client instance.
const SessionHeader = "X-Gobeacon-Session"

var (
	sessionOnce sync.Once
	sessionID   string
)

// ProcessSessionID returns the session identifier for this process.
//
// The id is generated once per process lifetime and is stable across all
// clients and engines constructed afterwards.
func ProcessSessionID() string {
	sessionOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}
