package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"agentmesh/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.New(slog.DiscardHandler))
}

func TestPublishTyped(t *testing.T) {
	b := newTestBus()
	defer b.Close()

	var mu sync.Mutex
	var got []domain.Event
	b.Subscribe(domain.EventGraphUpdated, func(_ context.Context, e domain.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	scopes := domain.Scopes{TenantID: "t1", ProjectID: "p1", GraphID: "g1"}
	b.Publish(context.Background(), domain.EventGraphUpdated, scopes, nil)
	b.Publish(context.Background(), domain.EventGraphDeleted, scopes, nil)
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TenantID)
	assert.Equal(t, "g1", got[0].GraphID)
}

func TestPublishBuildsScopedEnvelope(t *testing.T) {
	b := newTestBus()

	got := make(chan domain.Event, 1)
	b.Subscribe(domain.EventToolUpserted, func(_ context.Context, e domain.Event) {
		got <- e
	})

	scopes := domain.Scopes{TenantID: "t1", ProjectID: "p1"}
	b.Publish(context.Background(), domain.EventToolUpserted, scopes, map[string]string{"toolId": "tool1"})
	b.Close()

	e := <-got
	assert.Equal(t, domain.EventToolUpserted, e.Type)
	assert.Equal(t, "t1", e.TenantID)
	assert.Equal(t, "p1", e.ProjectID)
	assert.False(t, e.Timestamp.IsZero())
	assert.JSONEq(t, `{"toolId":"tool1"}`, string(e.Payload))
}

func TestPublishDropsUnmarshalablePayload(t *testing.T) {
	b := newTestBus()

	got := make(chan domain.Event, 1)
	b.SubscribeAll(func(_ context.Context, e domain.Event) { got <- e })

	b.Publish(context.Background(), domain.EventToolUpserted,
		domain.Scopes{TenantID: "t1"}, func() {})
	b.Close()

	e := <-got
	assert.Equal(t, domain.EventToolUpserted, e.Type)
	assert.Nil(t, e.Payload)
}

func TestSubscribeAllAndUnsubscribe(t *testing.T) {
	b := newTestBus()

	var mu sync.Mutex
	count := 0
	unsub := b.SubscribeAll(func(_ context.Context, _ domain.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	scopes := domain.Scopes{TenantID: "t1", ProjectID: "p1"}
	b.Publish(context.Background(), domain.EventProjectCreated, scopes, nil)
	// Let the dispatch goroutine run before unsubscribing.
	time.Sleep(10 * time.Millisecond)
	unsub()
	b.Publish(context.Background(), domain.EventProjectDeleted, scopes, nil)
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestPanickingHandlerRecovered(t *testing.T) {
	b := newTestBus()
	b.SubscribeAll(func(_ context.Context, _ domain.Event) {
		panic("handler bug")
	})

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), domain.EventToolUpserted, domain.Scopes{TenantID: "t1"}, nil)
		b.Close()
	})
}

func TestPublishAfterCloseDropped(t *testing.T) {
	b := newTestBus()

	called := false
	b.SubscribeAll(func(_ context.Context, _ domain.Event) { called = true })
	b.Close()
	b.Publish(context.Background(), domain.EventProjectCreated, domain.Scopes{}, nil)

	assert.False(t, called)
}
