// Package health exposes dependency checks over HTTP.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
)

// Check is one named dependency probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// NewChecker builds a checker from probes. A dependency counts as down after
// a single failure so readiness reacts quickly.
func NewChecker(checks ...Check) health.Checker {
	opts := []health.CheckerOption{health.WithTimeout(5 * time.Second)}
	for _, c := range checks {
		opts = append(opts, health.WithCheck(health.Check{
			Name:               c.Name,
			Check:              c.Probe,
			MaxTimeInError:     1,
			MaxContiguousFails: 1,
		}))
	}
	return health.NewChecker(opts...)
}

// Handler serves the checker's aggregated status.
func Handler(checker health.Checker) http.Handler {
	return health.NewHandler(checker)
}
