package apicache

import (
	"encoding/json"
	"time"
)

// Entry is one cached upstream response body, keyed by source and drug
// (for example "fda:atorvastatin").
type Entry struct {
	Key       string          `db:"cache_key" json:"cache_key"`
	Data      json.RawMessage `db:"data" json:"data"`
	ExpiresAt time.Time       `db:"expires_at" json:"expires_at"`
}

// Fresh reports whether the entry is still servable at now.
func (e *Entry) Fresh(now time.Time) bool {
	return e.ExpiresAt.After(now)
}
