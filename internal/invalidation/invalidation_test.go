package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/cache"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func seed(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	entries := []struct{ alias, container string }{
		{"shop", "default"},
		{"shop", "promo"},
		{"blog", "default"},
	}
	for _, e := range entries {
		key := cache.Key(e.alias, e.container, "foo")
		tags := []string{cache.IndexTag(e.alias), cache.ContainerTag(e.container)}
		if err := c.Save(ctx, key, map[string]float64{"bar": 0.1}, tags); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent("shop", "", "rules changed")
	if e.ID == "" || e.At.IsZero() {
		t.Errorf("event = %+v", e)
	}
	if NewEvent("shop", "", "").ID == e.ID {
		t.Error("ids must be unique")
	}
	if err := NewEvent("", "", "").Validate(); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		event     Event
		dropped   int
		remaining int
	}{
		{"index", Event{Index: "shop"}, 2, 1},
		{"container", Event{Container: "default"}, 2, 1},
		{"both", Event{Index: "shop", Container: "default"}, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cache.NewMemory(10, 0)
			seed(t, c)
			n, err := Apply(context.Background(), c, tt.event, nil)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.dropped {
				t.Errorf("dropped %d, want %d", n, tt.dropped)
			}
			if c.Len() != tt.remaining {
				t.Errorf("remaining %d, want %d", c.Len(), tt.remaining)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	if _, err := Decode([]byte("{")); err == nil {
		t.Error("expected decode error")
	}
	if _, err := Decode([]byte(`{"id":"x"}`)); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
	e, err := Decode([]byte(`{"id":"x","index":"shop","reason":"r"}`))
	if err != nil {
		t.Fatal(err)
	}
	if e.Index != "shop" || e.Reason != "r" {
		t.Errorf("event = %+v", e)
	}
}

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, logger: zap.NewNop()}
	e := NewEvent("shop", "promo", "manual")
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "shop" {
		t.Errorf("key = %q", w.msgs[0].Key)
	}
	var got Event
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID || got.Container != "promo" {
		t.Errorf("payload = %+v", got)
	}

	if err := p.Publish(context.Background(), Event{}); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
	w.err = errors.New("broker down")
	if err := p.Publish(context.Background(), e); err == nil {
		t.Error("expected write error")
	}
}

func TestConsumer_Run(t *testing.T) {
	c := cache.NewMemory(10, 0)
	seed(t, c)

	good, _ := json.Marshal(NewEvent("shop", "", "rules changed"))
	r := &fakeReader{pending: []kafka.Message{
		{Value: []byte("garbage"), Offset: 1},
		{Value: good, Offset: 2},
	}}
	consumer := &Consumer{reader: r, cache: c, logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.committedCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if r.committedCount() != 2 {
		t.Errorf("committed %d messages, want 2", r.committedCount())
	}
	if c.Len() != 1 {
		t.Errorf("remaining entries %d, want 1", c.Len())
	}
}

type fakePublisher struct {
	events []Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, e Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func TestInvalidator_expandsNames(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(10, 0)
	for _, key := range []string{"products", "shop"} {
		if err := c.Save(ctx, key+"|default|q", map[string]float64{"x": 0.1}, []string{cache.IndexTag(key)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Save(ctx, "other|default|q", map[string]float64{"x": 0.1}, []string{cache.IndexTag("other")}); err != nil {
		t.Fatal(err)
	}

	pub := &fakePublisher{}
	names := func(string) []string { return []string{"products", "shop"} }
	inv := NewInvalidator(c, pub, names, zap.NewNop(), nil)
	res, err := inv.Invalidate(ctx, "shop", "", "rules reloaded")
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 2 || !res.Published {
		t.Errorf("result = %+v", res)
	}
	if len(pub.events) != 2 || pub.events[0].Index != "products" || pub.events[1].Reason != "rules reloaded" {
		t.Errorf("published = %+v", pub.events)
	}
	if c.Len() != 1 {
		t.Errorf("remaining entries = %d, want 1", c.Len())
	}
}

func TestInvalidator_publishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(10, 0)
	if err := c.Save(ctx, "k", map[string]float64{}, []string{cache.ContainerTag("shop")}); err != nil {
		t.Fatal(err)
	}
	inv := NewInvalidator(c, &fakePublisher{err: errors.New("broker down")}, nil, nil, nil)
	res, err := inv.Invalidate(ctx, "", "shop", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 1 || res.Published {
		t.Errorf("result = %+v", res)
	}
}

func TestInvalidator_requiresTarget(t *testing.T) {
	inv := NewInvalidator(cache.NewMemory(10, 0), nil, nil, nil, nil)
	if _, err := inv.Invalidate(context.Background(), "", "", ""); !errors.Is(err, ErrNoTarget) {
		t.Errorf("err = %v, want ErrNoTarget", err)
	}
}
