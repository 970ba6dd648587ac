package metrics

import (
	"testing"
	"time"
)

func TestMemoryObserverRecords(t *testing.T) {
	m := NewMemoryObserver()
	m.RecordEvent(MetricsEvent{Name: EventWakeDetection, Time: time.Now(), Value: 0.82})
	m.RecordEvent(MetricsEvent{Name: EventStateChange, Time: time.Now()})
	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if m.Events[0].Name != EventWakeDetection {
		t.Fatalf("unexpected first event %q", m.Events[0].Name)
	}
}

func TestSamplingObserverKeepsEveryNth(t *testing.T) {
	inner := NewMemoryObserver()
	s := NewSamplingObserver(inner, 0.25)
	for i := 0; i < 100; i++ {
		s.RecordEvent(MetricsEvent{Name: EventFrameVolume, Value: float64(i)})
	}
	if len(inner.Events) != 25 {
		t.Fatalf("expected 25 sampled events, got %d", len(inner.Events))
	}
}

func TestSamplingObserverZeroRateDropsAll(t *testing.T) {
	inner := NewMemoryObserver()
	s := NewSamplingObserver(inner, 0)
	for i := 0; i < 10; i++ {
		s.RecordEvent(MetricsEvent{Name: EventFrameVolume})
	}
	if len(inner.Events) != 0 {
		t.Fatalf("expected no events at rate 0, got %d", len(inner.Events))
	}
}

func TestAsyncObserverDropsWhenFull(t *testing.T) {
	blocker := make(chan struct{})
	inner := &blockingObserver{release: blocker}
	a := NewAsyncObserver(inner, 1)
	defer a.Close()

	for i := 0; i < 10; i++ {
		a.RecordEvent(MetricsEvent{Name: EventFrameVolume})
	}
	close(blocker)
	if a.Dropped() == 0 {
		t.Fatalf("expected drops when buffer is full")
	}
}

func TestAsyncObserverCloseDrainsBuffer(t *testing.T) {
	inner := NewMemoryObserver()
	a := NewAsyncObserver(inner, 64)
	for i := 0; i < 10; i++ {
		a.RecordEvent(MetricsEvent{Name: EventWakeScore, Value: float64(i)})
	}
	a.Close()
	if got := len(inner.Snapshot()); got != 10 {
		t.Fatalf("expected all 10 events flushed on close, got %d", got)
	}
	a.RecordEvent(MetricsEvent{Name: EventWakeScore})
	if got := len(inner.Snapshot()); got != 10 {
		t.Fatalf("record after close should be ignored, got %d events", got)
	}
}

type blockingObserver struct {
	release chan struct{}
}

func (b *blockingObserver) RecordEvent(MetricsEvent) {
	<-b.release
}
