package scheduler

import (
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	for _, expr := range []string{"* * * * *", "@every 1m", "@hourly"} {
		if err := s.AddJob(expr, func() {}); err != nil {
			t.Errorf("AddJob(%q): expected no error, got %v", expr, err)
		}
	}
	for _, expr := range []string{"", "not a schedule", "* * * * * *"} {
		if err := s.AddJob(expr, func() {}); err == nil {
			t.Errorf("AddJob(%q): expected error", expr)
		}
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	ran := make(chan struct{}, 1)
	if err := s.AddJob("@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	ran := make(chan struct{}, 2)
	s.AddJob("@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
		panic("boom")
	})

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(3 * time.Second):
			t.Fatalf("job stopped running after panic (run %d)", i+1)
		}
	}
}
