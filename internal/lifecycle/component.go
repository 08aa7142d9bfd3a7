// Package lifecycle manages startup and shutdown ordering of long-running
// components such as the API server and the session reaper.
package lifecycle

import "context"

// Component is implemented by anything the lifecycle manager starts and stops.
type Component interface {
	// Start initializes and starts the component. Must be idempotent.
	Start(ctx context.Context) error

	// Stop gracefully stops the component, respecting the context deadline.
	Stop(ctx context.Context) error

	// Name returns the component name used in logs and error messages.
	Name() string
}
