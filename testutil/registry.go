package testutil

import (
	"time"

	"github.com/skosovsky/toolflow"
)

// NewTestRegistry returns a Registry with a long timeout and panic recovery
// middleware, suitable for tests.
func NewTestRegistry(tools ...toolflow.Tool) *toolflow.Registry {
	reg := toolflow.NewRegistry(toolflow.WithDefaultTimeout(30 * time.Second))
	reg.Use(toolflow.WithRecovery())
	reg.Register(tools...)
	return reg
}
