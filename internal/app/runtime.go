package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv names the variable that keeps accessd and the worker from
// dialing Postgres, Redis or the job queue. Command package tests set it so
// main can run without infrastructure.
const TestModeEnv = "ACCESS_TEST_MODE"

var (
	skipStartup     atomic.Bool
	skipStartupOnce sync.Once
)

func readTestMode() {
	enabled, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(TestModeEnv)))
	skipStartup.Store(err == nil && enabled)
}

// SkipStartup reports whether a binary should return before opening any
// connection. The environment is read once; RefreshTestMode re-reads it.
func SkipStartup() bool {
	skipStartupOnce.Do(readTestMode)
	return skipStartup.Load()
}

// RefreshTestMode re-reads TestModeEnv after the environment changed.
func RefreshTestMode() {
	skipStartupOnce.Do(func() {})
	readTestMode()
}
