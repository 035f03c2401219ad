package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

func TestNewDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	if d.Emit(context.Background(), Event{EventType: "x"}) {
		t.Fatal("nil dispatcher must not accept events")
	}
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher counters must be zero")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	var onDrop atomic.Int64
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		OnDrop:     func(Event) { onDrop.Add(1) },
	}, sink)

	// First event is picked up by the worker and blocks in the sink, second
	// fills the buffer, the rest must be dropped.
	d.Emit(context.Background(), Event{EventType: "a"})
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "b"})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}
	if uint64(onDrop.Load()) != d.Dropped() {
		t.Fatalf("OnDrop calls %d != dropped %d", onDrop.Load(), d.Dropped())
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 20; i++ {
		if !d.Emit(context.Background(), Event{EventType: "signin"}) {
			t.Fatalf("event %d rejected", i)
		}
	}
	d.Close()

	if got := sink.count.Load(); got != 20 {
		t.Fatalf("expected 20 delivered events, got %d", got)
	}
	if d.Delivered() != 20 {
		t.Fatalf("expected Delivered()=20, got %d", d.Delivered())
	}
	if d.Emit(context.Background(), Event{EventType: "late"}) {
		t.Fatal("closed dispatcher must reject events")
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{EventType: "signup_begin", FlowID: "f1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "signup_confirm", FlowID: "f1", Error: "invalid_code"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded Event
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.EventType != "signup_confirm" || decoded.Error != "invalid_code" || decoded.Success {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestSlogSinkWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := NewSlogSink(logger, slog.LevelInfo)

	sink.Emit(context.Background(), Event{
		EventType: "sign_in",
		FlowID:    "f2",
		Username:  "ann@x.com",
		Error:     "rate_limited",
		Metadata:  map[string]string{"reason": "pre_sign_in"},
	})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["msg"] != "audit" || decoded["event_type"] != "sign_in" || decoded["flow_id"] != "f2" {
		t.Fatalf("unexpected record: %v", decoded)
	}
	if decoded["error"] != "rate_limited" || decoded["meta.reason"] != "pre_sign_in" {
		t.Fatalf("unexpected record: %v", decoded)
	}
	if decoded["success"] != false {
		t.Fatalf("expected success=false, got %v", decoded["success"])
	}
}
