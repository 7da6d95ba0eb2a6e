package storage

import (
	"context"
	"testing"
	"time"
)

// testContext caps every storage test at a deadline so a hung database
// connection fails the test instead of stalling the suite.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
