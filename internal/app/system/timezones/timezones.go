// Package timezones resolves the location used to interpret assignment
// wall-clock dates and times.
package timezones

import (
	"strings"
	"time"
)

// Resolve returns the location named by id. Empty and "Local" map to the
// process-local zone; "UTC" maps to UTC; anything else goes through the IANA
// database.
func Resolve(id string) (*time.Location, error) {
	id = strings.TrimSpace(id)
	switch strings.ToLower(id) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	}
	return time.LoadLocation(id)
}

// Valid reports whether id resolves.
func Valid(id string) bool {
	_, err := Resolve(id)
	return err == nil
}
