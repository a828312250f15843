package notify

import (
	"testing"
	"time"
)

func TestNotifier_PublishNoSubscribers(t *testing.T) {
	n := NewNotifier(10)
	n.Publish(Event{Type: JobPlanned, Index: "logs"})
}

func TestNotifier_SubscriberReceivesEvent(t *testing.T) {
	n := NewNotifier(10)
	sub := n.Subscribe()

	n.Publish(Event{Type: JobPlanned, JobID: "job-1", Index: "logs", Splits: 4})

	select {
	case e := <-sub.Ch:
		if e.JobID != "job-1" || e.Splits != 4 || e.Type != JobPlanned {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestNotifier_Filters(t *testing.T) {
	n := NewNotifier(10)
	logs := n.Subscribe("logs-")
	metrics := n.Subscribe("metrics")

	n.Publish(Event{Type: JobPlanned, Index: "logs-2026"})

	select {
	case e := <-logs.Ch:
		if e.Index != "logs-2026" {
			t.Errorf("unexpected index %s", e.Index)
		}
	default:
		t.Fatal("matching subscriber missed event")
	}
	select {
	case e := <-metrics.Ch:
		t.Fatalf("filtered subscriber received %+v", e)
	default:
	}
}

func TestNotifier_FullChannelDropsEvent(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe()
	n.Publish(Event{Index: "a"})

	done := make(chan struct{})
	go func() {
		n.Publish(Event{Index: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if e := <-sub.Ch; e.Index != "a" {
		t.Errorf("expected first event to be kept, got %s", e.Index)
	}
}

func TestNotifier_UnsubscribeAndClose(t *testing.T) {
	n := NewNotifier(1)
	a := n.Subscribe()
	b := n.Subscribe()
	if a.ID == b.ID {
		t.Fatal("subscriber ids must be unique")
	}

	n.Unsubscribe(a.ID)
	if _, ok := <-a.Ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	n.Unsubscribe(a.ID)

	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-b.Ch; ok {
		t.Error("channel should be closed after Close")
	}
}

func TestEventType_String(t *testing.T) {
	if JobPlanned.String() != "job_planned" || JobFailed.String() != "job_failed" {
		t.Error("unexpected event type names")
	}
}
