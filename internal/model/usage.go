package model

import (
	"time"
)

// DeviceDailyUsage counts allowed requests per device per UTC calendar day.
// A new day starts a fresh row; there is no explicit daily reset for these.
type DeviceDailyUsage struct {
	Day       time.Time `db:"day" json:"day"`
	DeviceKey string    `db:"device_key" json:"deviceKey"`
	Count     int       `db:"count" json:"count"`
}

// UsageDay truncates t to the UTC calendar day that buckets device usage.
func UsageDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
