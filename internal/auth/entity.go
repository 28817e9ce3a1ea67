// AngelaMos | 2026
// entity.go

package auth

import "time"

// LoginAttempt is one authentication try, success or failure. Rows are
// append-only and bulk-deleted for a subject on that subject's next
// success; the table is the durable, cross-instance throttle state.
type LoginAttempt struct {
	ID          string    `db:"id"`
	Identifier  string    `db:"identifier"`
	IPAddress   string    `db:"ip_address"`
	Success     bool      `db:"success"`
	AttemptedAt time.Time `db:"attempted_at"`
}
