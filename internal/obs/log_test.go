package obs

import (
	"testing"

	"go.uber.org/zap"
)

func TestSetLoggerSwapsShared(t *testing.T) {
	nop := zap.NewNop()
	prev := SetLogger(nop)
	t.Cleanup(func() { SetLogger(prev) })

	if Logger() != nop {
		t.Fatal("expected shared logger to be replaced")
	}
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger("production", "chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
