package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is a structured log line retained in a RecentBuffer.
type Event struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	State     string            `json:"state,omitempty"`
	CycleID   string            `json:"cycle_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// RecentBuffer keeps the most recent log events in memory for the IPC logs call.
type RecentBuffer struct {
	mu       sync.Mutex
	capacity int
	events   []Event
	nextSeq  uint64
}

// NewRecentBuffer constructs a bounded buffer. Non-positive capacity defaults to 256.
func NewRecentBuffer(capacity int) *RecentBuffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &RecentBuffer{capacity: capacity}
}

func (b *RecentBuffer) append(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	evt.Sequence = b.nextSeq
	if len(b.events) == b.capacity {
		copy(b.events, b.events[1:])
		b.events[len(b.events)-1] = evt
		return
	}
	b.events = append(b.events, evt)
}

// Since returns events with a sequence greater than after, oldest first, capped at limit.
func (b *RecentBuffer) Since(after uint64, limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, 0, len(b.events))
	for _, evt := range b.events {
		if evt.Sequence > after {
			out = append(out, evt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Handler returns a slog.Handler feeding this buffer.
func (b *RecentBuffer) Handler(level slog.Leveler) slog.Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &recentHandler{buffer: b, level: level}
}

type recentHandler struct {
	buffer *RecentBuffer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func (h *recentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *recentHandler) Handle(_ context.Context, record slog.Record) error {
	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		flattenAttr(&kvs, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})

	evt := Event{
		Timestamp: record.Time,
		Level:     levelLabel(record.Level),
		Message:   record.Message,
	}
	for _, item := range kvs {
		switch item.key {
		case FieldComponent:
			evt.Component = attrString(item.value)
		case FieldState:
			evt.State = attrString(item.value)
		case FieldCycleID:
			evt.CycleID = attrString(item.value)
		default:
			if evt.Fields == nil {
				evt.Fields = make(map[string]string, len(kvs))
			}
			evt.Fields[item.key] = attrString(item.value)
		}
	}
	h.buffer.append(evt)
	return nil
}

func (h *recentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *recentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
