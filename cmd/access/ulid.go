package access

import (
	"time"

	"accessgate/cmd/access/ids"
)

// NewID mints the primary key for codes, sessions and attempt rows.
func NewID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
