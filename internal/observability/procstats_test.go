package observability

import (
	"context"
	"os"
	"testing"
)

func TestProcessRSS_CurrentProcess(t *testing.T) {
	rss, err := ProcessRSS(context.Background(), int32(os.Getpid()))
	if err != nil {
		t.Fatalf("ProcessRSS failed: %v", err)
	}
	if rss == 0 {
		t.Error("expected a non-zero resident set size")
	}
}
