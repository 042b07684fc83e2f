// Package noevents declares a service and no events.
package noevents

// Clock tells the time.
//
//bridge:service
type Clock struct{}

// Unix returns seconds since the epoch.
func (*Clock) Unix() int64 { return 0 }

// Reset has no result.
func (*Clock) Reset() {}
