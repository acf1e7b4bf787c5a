package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func created(title string) domain.Event {
	return domain.Event{
		Kind:    domain.EventIssueCreated,
		Payload: map[string]string{"title": title},
	}
}

func decodeType(t *testing.T, raw string) (string, string) {
	t.Helper()
	var msg struct {
		Type string `json:"type"`
		Data struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return msg.Type, msg.Data.Title
}

func newTestBroadcaster(cfg BroadcasterConfig) (*Broadcaster, *Registry) {
	m := newTestMetrics()
	reg := NewRegistry(m, discardLogger())
	return NewBroadcaster(reg, cfg, m, discardLogger()), reg
}

func TestBroadcastAll_FailuresAreIsolated(t *testing.T) {
	b, reg := newTestBroadcaster(BroadcasterConfig{})

	healthy := []*fakeConn{newFakeConn("u1"), newFakeConn(""), newFakeConn("u2")}
	broken := []*fakeConn{newFakeConn("u1").failing(sendFail), newFakeConn("").failing(sendFail)}
	for _, c := range append(append([]*fakeConn{}, healthy...), broken...) {
		reg.Register(c)
	}

	report := b.BroadcastAll(context.Background(), created("crash on save"))

	assert.Equal(t, DeliveryReport{Attempted: 5, Delivered: 3, Failed: 2}, report)
	assert.Equal(t, 3, reg.Count())
	for _, c := range healthy {
		require.Len(t, c.Messages(), 1)
		kind, title := decodeType(t, c.Messages()[0])
		assert.Equal(t, "issue_created", kind)
		assert.Equal(t, "crash on save", title)
	}
	for _, c := range broken {
		assert.Equal(t, int32(1), c.closes.Load())
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(b.metrics.DeliveryFailures))
	assert.Equal(t, float64(3), testutil.ToFloat64(b.metrics.MessagesDelivered))
}

func TestBroadcastAll_PreservesOrderPerConnection(t *testing.T) {
	b, reg := newTestBroadcaster(BroadcasterConfig{Parallelism: 4})

	conns := make([]*fakeConn, 10)
	for i := range conns {
		conns[i] = newFakeConn("")
		reg.Register(conns[i])
	}

	ctx := context.Background()
	b.BroadcastAll(ctx, created("A"))
	b.BroadcastAll(ctx, created("B"))

	for _, c := range conns {
		msgs := c.Messages()
		require.Len(t, msgs, 2)
		_, first := decodeType(t, msgs[0])
		_, second := decodeType(t, msgs[1])
		assert.Equal(t, "A", first)
		assert.Equal(t, "B", second)
	}
}

func TestBroadcastToUser(t *testing.T) {
	b, reg := newTestBroadcaster(BroadcasterConfig{})

	phone := newFakeConn("u1")
	laptop := newFakeConn("u1")
	other := newFakeConn("u2")
	anon := newFakeConn("")
	for _, c := range []*fakeConn{phone, laptop, other, anon} {
		reg.Register(c)
	}

	report := b.BroadcastToUser(context.Background(), created("assigned to you"), "u1")

	assert.Equal(t, 2, report.Delivered)
	assert.Len(t, phone.Messages(), 1)
	assert.Len(t, laptop.Messages(), 1)
	assert.Empty(t, other.Messages())
	assert.Empty(t, anon.Messages())

	t.Run("unknown user is a no-op", func(t *testing.T) {
		report := b.BroadcastToUser(context.Background(), created("x"), "ghost")
		assert.Equal(t, DeliveryReport{}, report)
		assert.Equal(t, 4, reg.Count())
	})
}

func TestBroadcast_SendTimeout(t *testing.T) {
	b, reg := newTestBroadcaster(BroadcasterConfig{SendTimeout: 50 * time.Millisecond})

	stuck := newFakeConn("").failing(sendHang)
	defer close(stuck.release)
	fine := newFakeConn("")
	reg.Register(stuck)
	reg.Register(fine)

	start := time.Now()
	report := b.BroadcastAll(context.Background(), created("slow"))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, int32(1), stuck.closes.Load())
}

func TestBroadcast_PanickingConnection(t *testing.T) {
	b, reg := newTestBroadcaster(BroadcasterConfig{})

	bad := newFakeConn("u1").failing(sendPanic)
	good := newFakeConn("u1")
	reg.Register(bad)
	reg.Register(good)

	var report DeliveryReport
	require.NotPanics(t, func() {
		report = b.BroadcastToUser(context.Background(), created("boom"), "u1")
	})

	assert.Equal(t, 1, report.Failed)
	assert.Len(t, good.Messages(), 1)
	assert.Equal(t, []any{good}, toAny(reg.SnapshotForUser("u1")))
}

func TestBroadcast_UnencodablePayloadIsDropped(t *testing.T) {
	b, reg := newTestBroadcaster(BroadcasterConfig{})
	c := newFakeConn("")
	reg.Register(c)

	report := b.BroadcastAll(context.Background(), domain.Event{
		Kind:    domain.EventIssueCreated,
		Payload: map[string]any{"bad": make(chan int)},
	})

	assert.Equal(t, DeliveryReport{}, report)
	assert.Empty(t, c.Messages())
	assert.Equal(t, 1, reg.Count())
}

func TestNotify_QueueFullDrops(t *testing.T) {
	b, _ := newTestBroadcaster(BroadcasterConfig{QueueSize: 1})

	b.Notify(created("first"))
	b.Notify(created("second"))

	assert.Equal(t, float64(1), testutil.ToFloat64(b.metrics.EventsDropped))
	assert.Len(t, b.events, 1)
}

func TestRun_DispatchesInOrder(t *testing.T) {
	b, reg := newTestBroadcaster(BroadcasterConfig{})

	u1 := newFakeConn("u1")
	anon := newFakeConn("")
	reg.Register(u1)
	reg.Register(anon)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Notify(created("A"))
	targeted := created("only u1")
	targeted.TargetUserID = "u1"
	b.Notify(targeted)
	b.Notify(created("B"))

	require.Eventually(t, func() bool {
		return len(u1.Messages()) == 3 && len(anon.Messages()) == 2
	}, time.Second, 5*time.Millisecond)

	var titles []string
	for _, m := range u1.Messages() {
		_, title := decodeType(t, m)
		titles = append(titles, title)
	}
	assert.Equal(t, []string{"A", "only u1", "B"}, titles)
}

func TestBroadcast_UserAndEveryoneScenario(t *testing.T) {
	b, reg := newTestBroadcaster(BroadcasterConfig{})

	tagged := []*fakeConn{newFakeConn("u1"), newFakeConn("u1")}
	untagged := newFakeConn("")
	for _, c := range append(tagged, untagged) {
		reg.Register(c)
	}
	ctx := context.Background()

	toUser := b.BroadcastToUser(ctx, created("for u1"), "u1")
	assert.Equal(t, DeliveryReport{Attempted: 2, Delivered: 2}, toUser)
	assert.Empty(t, untagged.Messages())

	toAll := b.BroadcastAll(ctx, created("for everyone"))
	assert.Equal(t, DeliveryReport{Attempted: 3, Delivered: 3}, toAll)
	for _, c := range tagged {
		assert.Len(t, c.Messages(), 2)
	}
	assert.Len(t, untagged.Messages(), 1)
}
