package orchestrator

import (
	"testing"

	"go.uber.org/goleak"
)

// Fan-out workers and component closers must not outlive a run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
