package gatekeeper

import (
	"reflect"
	"testing"
	"time"
)

func TestSchedule_FiresOnceWithPayload(t *testing.T) {
	fired := make(chan JobPayload, 4)
	sched := NewScheduler(func(payload JobPayload) { fired <- payload })

	payload := JobPayload{Kind: JobKick, ChatID: 1, UserID: 2}
	sched.Schedule("1|2|kick", time.Now().Add(10*time.Millisecond), payload)

	select {
	case got := <-fired:
		if got != payload {
			t.Errorf("expected payload %+v, got %+v", payload, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}

	select {
	case <-fired:
		t.Error("job fired more than once")
	case <-time.After(100 * time.Millisecond):
	}

	if sched.Cancel("1|2|kick") {
		t.Error("Cancel returned true for an already-fired job")
	}
	if len(sched.Pending()) != 0 {
		t.Errorf("expected no pending jobs, got %v", sched.Pending())
	}
}

func TestCancel_PreventsFire(t *testing.T) {
	fired := make(chan JobPayload, 1)
	sched := NewScheduler(func(payload JobPayload) { fired <- payload })

	sched.Schedule("job", time.Now().Add(50*time.Millisecond), JobPayload{Kind: JobKick})
	if !sched.Cancel("job") {
		t.Fatal("Cancel returned false for a pending job")
	}

	select {
	case <-fired:
		t.Error("cancelled job fired")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCancel_UnknownJob(t *testing.T) {
	sched := NewScheduler(func(JobPayload) {})

	if sched.Cancel("never-scheduled") {
		t.Error("Cancel returned true for an unknown job")
	}
}

func TestSchedule_ReplacesExisting(t *testing.T) {
	fired := make(chan JobPayload, 4)
	sched := NewScheduler(func(payload JobPayload) { fired <- payload })

	sched.Schedule("job", time.Now().Add(50*time.Millisecond), JobPayload{Kind: JobKick, UserID: 1})
	sched.Schedule("job", time.Now().Add(10*time.Millisecond), JobPayload{Kind: JobKick, UserID: 2})

	select {
	case got := <-fired:
		if got.UserID != 2 {
			t.Errorf("expected replacement payload, got user %d", got.UserID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replacement job never fired")
	}

	select {
	case got := <-fired:
		t.Errorf("replaced job fired anyway with user %d", got.UserID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPending_SortedIDs(t *testing.T) {
	sched := NewScheduler(func(JobPayload) {})
	defer func() {
		for _, id := range sched.Pending() {
			sched.Cancel(id)
		}
	}()

	far := time.Now().Add(time.Hour)
	sched.Schedule("c", far, JobPayload{})
	sched.Schedule("a", far, JobPayload{})
	sched.Schedule("b", far, JobPayload{})

	want := []string{"a", "b", "c"}
	if got := sched.Pending(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
