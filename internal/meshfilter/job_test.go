package meshfilter

import (
	"errors"
	"testing"
)

func TestJobExecuteDeliversResult(t *testing.T) {
	j := newJob(func() int { return 42 })
	go j.execute()
	got, err := j.wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
}

func TestJobCancelReportsStopped(t *testing.T) {
	j := newJob(func() int { return 42 })
	j.cancel()
	got, err := j.wait()
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if got != 0 {
		t.Fatalf("cancelled job leaked a result: %d", got)
	}
}

func TestJobWaitBlocksUntilDone(t *testing.T) {
	release := make(chan struct{})
	j := newJob(func() string {
		<-release
		return "done"
	})
	go j.execute()
	close(release)
	got, err := j.wait()
	if err != nil || got != "done" {
		t.Fatalf("got %q, %v", got, err)
	}
}
