package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockrelay/internal/registry"
	"mockrelay/pkg/control"
	"mockrelay/pkg/domain"
	"mockrelay/pkg/traffic"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []control.Message
	err  error
}

func (c *recordingChannel) Send(_ context.Context, _ domain.SessionID, msg control.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) messages() []control.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]control.Message(nil), c.sent...)
}

type recordingArchive struct {
	mu   sync.Mutex
	rows int
}

func (a *recordingArchive) Append(context.Context, domain.SessionID, domain.Envelope, *traffic.Response) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows++
	return nil
}

func (a *recordingArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rows
}

func env() domain.Envelope {
	req := traffic.NewRequest()
	req.Method = "GET"
	req.URL = "https://example.com/users/42"
	return domain.Envelope{CorrelationID: "c1", InterceptedAt: time.Now(), Request: req}
}

func TestNotifyActiveSession(t *testing.T) {
	reg := registry.New(nil)
	reg.Activate("s1")
	ch := &recordingChannel{}
	ar := &recordingArchive{}
	r := New(reg, ch, ar, nil)

	resp := traffic.NewResponse()
	resp.Synthetic = true
	r.Notify("s1", env(), resp)
	r.Wait()

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, control.TypeResponse, msgs[0].Type)
	assert.Equal(t, domain.CorrelationID("c1"), msgs[0].CorrelationID)
	assert.Equal(t, 1, ar.count())
}

func TestNotifySkipsDeactivatedSession(t *testing.T) {
	reg := registry.New(nil)
	ch := &recordingChannel{}
	ar := &recordingArchive{}
	r := New(reg, ch, ar, nil)

	// 会话在调用进行中停用：通知跳过，归档照常
	r.Notify("gone", env(), traffic.NewResponse())
	r.Wait()

	assert.Empty(t, ch.messages())
	assert.Equal(t, 1, ar.count())
}

func TestNotifySendFailureSwallowed(t *testing.T) {
	reg := registry.New(nil)
	reg.Activate("s1")
	ch := &recordingChannel{err: errors.New("binding gone")}
	r := New(reg, ch, nil, nil)

	r.Notify("s1", env(), traffic.NewResponse())
	r.Wait() // 不 panic、不传播错误即为通过
}

func TestNotifyNilResponseMarksNetworkError(t *testing.T) {
	reg := registry.New(nil)
	reg.Activate("s1")
	ch := &recordingChannel{}
	r := New(reg, ch, nil, nil)

	r.Notify("s1", env(), nil)
	r.Wait()

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0].Payload), `"networkError":true`)
}
