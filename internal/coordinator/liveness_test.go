package coordinator

import (
	"os"
	"testing"
)

func TestPidAliveForCurrentProcess(t *testing.T) {
	if !pidAlive(os.Getpid()) {
		t.Error("the running test process should be reported alive")
	}
}

func TestPidAliveFalseForInvalidPID(t *testing.T) {
	if pidAlive(0) {
		t.Error("pid 0 should never be reported alive")
	}
	if pidAlive(-1) {
		t.Error("negative pid should never be reported alive")
	}
}

func TestPidAliveForUnlikelyPID(t *testing.T) {
	// A PID this large is virtually guaranteed not to exist on any real
	// system, and a nonexistent PID must be reported dead.
	if pidAlive(1 << 30) {
		t.Error("expected an implausible pid to be reported dead")
	}
}
