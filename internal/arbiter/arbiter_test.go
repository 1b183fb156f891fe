package arbiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockrelay/pkg/control"
	"mockrelay/pkg/domain"
	"mockrelay/pkg/traffic"
)

// fakeChannel 记录发出的消息，可注入发送错误
type fakeChannel struct {
	mu   sync.Mutex
	sent []control.Message
	err  error
}

func (c *fakeChannel) Send(_ context.Context, _ domain.SessionID, msg control.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func envelope(id domain.CorrelationID) domain.Envelope {
	req := traffic.NewRequest()
	req.Method = "GET"
	req.URL = "https://example.com/"
	return domain.Envelope{CorrelationID: id, InterceptedAt: time.Now(), Request: req}
}

func TestAskResolvedWithMock(t *testing.T) {
	ch := &fakeChannel{}
	a := New(ch, nil)

	done := make(chan domain.Reply, 1)
	go func() {
		done <- a.Ask(context.Background(), "s1", envelope("c1"))
	}()

	// 等待 REQUEST 发出后再兑现
	require.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, time.Millisecond)
	require.True(t, a.Resolve("c1", domain.UseMock(traffic.NewResponse())))

	reply := <-done
	assert.Equal(t, domain.ReplyUseMock, reply.Kind)
	assert.Equal(t, 0, a.Pending())
}

func TestInterleavedRepliesNoCrossDelivery(t *testing.T) {
	ch := &fakeChannel{}
	a := New(ch, nil)

	type outcome struct {
		id    domain.CorrelationID
		reply domain.Reply
	}
	results := make(chan outcome, 2)
	for _, id := range []domain.CorrelationID{"x", "y"} {
		id := id
		go func() {
			results <- outcome{id: id, reply: a.Ask(context.Background(), "s1", envelope(id))}
		}()
	}
	require.Eventually(t, func() bool { return a.Pending() == 2 }, time.Second, time.Millisecond)

	// 逆序兑现：y 用 Mock，x 放行
	mock := traffic.NewResponse()
	mock.Status = 201
	require.True(t, a.Resolve("y", domain.UseMock(mock)))
	require.True(t, a.Resolve("x", domain.PassThrough()))

	got := map[domain.CorrelationID]domain.Reply{}
	for i := 0; i < 2; i++ {
		o := <-results
		got[o.id] = o.reply
	}
	assert.Equal(t, domain.ReplyPassThrough, got["x"].Kind)
	require.Equal(t, domain.ReplyUseMock, got["y"].Kind)
	assert.Equal(t, 201, got["y"].Response.Status)
}

func TestAskSendFailureFailsOpen(t *testing.T) {
	ch := &fakeChannel{err: errors.New("session gone")}
	a := New(ch, nil)

	reply := a.Ask(context.Background(), "s1", envelope("c1"))
	assert.Equal(t, domain.ReplyPassThrough, reply.Kind)
	assert.Equal(t, 0, a.Pending())
}

func TestAskContextCancelFailsOpen(t *testing.T) {
	ch := &fakeChannel{}
	a := New(ch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	reply := a.Ask(ctx, "s1", envelope("c1"))
	assert.Equal(t, domain.ReplyPassThrough, reply.Kind)
	assert.Equal(t, 0, a.Pending())
}

func TestResolveUnknownCorrelationDropped(t *testing.T) {
	a := New(&fakeChannel{}, nil)
	assert.False(t, a.Resolve("ghost", domain.PassThrough()))
}
