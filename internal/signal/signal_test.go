package signal

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestNotifyContext_CancelledOnSignal(t *testing.T) {
	ctx, stop := NotifyContext(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
}

func TestNotifyContext_StopCancels(t *testing.T) {
	ctx, stop := NotifyContext(context.Background())
	stop()
	if ctx.Err() == nil {
		t.Fatal("expected stop to cancel the context")
	}
}
