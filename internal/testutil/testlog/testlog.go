// Package testlog routes zerolog output through testing.T so it only shows
// for failing tests.
package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

func New(t testing.TB) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}
