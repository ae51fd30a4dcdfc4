package queue

import (
	"time"

	"github.com/google/uuid"
)

// Item statuses. Legal transitions are pending -> processing -> done|failed;
// terminal rows stay for operational inspection.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusDone:       true,
	StatusFailed:     true,
}

func ValidStatus(s string) bool {
	return validStatuses[s]
}

// Priorities run 1 (most urgent) through 10; lower claims first.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

type Item struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DrugName  string    `db:"drug_name" json:"drug_name"`
	Priority  int       `db:"priority" json:"priority"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
