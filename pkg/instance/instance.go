package instance

import "os"

// GetID returns the worker instance identifier or a default value.
// Reconcile workers stamp it into integration_events.claimed_by.
func GetID() string {
	if id := os.Getenv("CARGOLINK_WORKER_ID"); id != "" {
		return id
	}
	return "reconcile-0"
}
