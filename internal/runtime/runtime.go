// Package runtime holds the process-wide dig container, matching the
// teacher's runtime.GetContainer().Invoke(...) wiring idiom used throughout
// internal/models/embedding. cmd/server and cmd/worker populate the
// container at startup with Provide calls; handlers and background jobs
// resolve their collaborators with Invoke rather than reaching for package
// globals.
package runtime

import (
	"sync"

	"go.uber.org/dig"
)

var (
	mu        sync.Mutex
	container *dig.Container
)

// GetContainer returns the process-wide container, constructing it on
// first use.
func GetContainer() *dig.Container {
	mu.Lock()
	defer mu.Unlock()
	if container == nil {
		container = dig.New()
	}
	return container
}

// SetContainer replaces the process-wide container, for tests that need an
// isolated wiring.
func SetContainer(c *dig.Container) {
	mu.Lock()
	defer mu.Unlock()
	container = c
}

// Reset discards the current container so the next GetContainer call
// builds a fresh one.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	container = nil
}
