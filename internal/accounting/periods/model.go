package periods

import "time"

// LockCheck describes a write about to touch the ledger on DocumentDate.
type LockCheck struct {
	OrgID        int64
	ActorID      int64
	EntityType   string
	EntityID     string
	Action       string
	LockDate     *time.Time
	DocumentDate time.Time
}

// UTCDay truncates t to midnight UTC of its calendar day in UTC.
func UTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsLocked reports whether date falls on or before lockDate at day granularity.
func IsLocked(lockDate *time.Time, date time.Time) bool {
	if lockDate == nil || lockDate.IsZero() {
		return false
	}
	return !UTCDay(date).After(UTCDay(*lockDate))
}
