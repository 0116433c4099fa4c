package domain

import "time"

// Equipment is a catalog entry referenced by tickets. Read-only for the
// ticket core; catalog maintenance happens elsewhere.
type Equipment struct {
	Code      string
	Name      string
	Sector    *string
	CreatedAt time.Time
}
