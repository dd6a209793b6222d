// Package testlog routes test output through the shared zerolog setup.
package testlog

import (
	"testing"

	"github.com/danmuck/spinelctl/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures test logging and brackets t with start and done lines.
func Start(t testing.TB) {
	t.Helper()
	logging.ConfigureTests()
	log.Debug().Msgf("testlog.Start test=%s", t.Name())
	t.Cleanup(func() {
		log.Debug().Msgf("testlog.Done test=%s failed=%t", t.Name(), t.Failed())
	})
}
