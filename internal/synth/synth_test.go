package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockrelay/pkg/traffic"
)

// fakeExecutor 记录每种终结动作
type fakeExecutor struct {
	passed     []*traffic.Request
	fulfilled  []*traffic.Response
	failed     int
	fulfillErr error
}

func (e *fakeExecutor) PassThrough(_ context.Context, req *traffic.Request) (*traffic.Response, error) {
	e.passed = append(e.passed, req)
	resp := traffic.NewResponse()
	resp.Status = 204
	return resp, nil
}

func (e *fakeExecutor) Fulfill(_ context.Context, _ *traffic.Request, resp *traffic.Response) error {
	if e.fulfillErr != nil {
		return e.fulfillErr
	}
	e.fulfilled = append(e.fulfilled, resp)
	return nil
}

func (e *fakeExecutor) Fail(_ context.Context, _ *traffic.Request) error {
	e.failed++
	return nil
}

func TestPassThroughStripsSignalHeader(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, nil)

	req := traffic.NewRequest()
	req.Method = "POST"
	req.URL = "https://example.com/login"
	req.Headers.Add(traffic.PassThroughHeader, "1")
	req.Headers.Add("Content-Type", "application/json")

	resp, err := s.PassThrough(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Synthetic)

	require.Len(t, exec.passed, 1)
	assert.False(t, exec.passed[0].Headers.Has(traffic.PassThroughHeader))
	assert.Equal(t, "application/json", exec.passed[0].Headers.Get("content-type"))
}

func TestFromMockStatusZeroIsNetworkFailure(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, nil)

	mock := traffic.NewResponse()
	mock.Status = 0

	resp, err := s.FromMock(context.Background(), traffic.NewRequest(), mock)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, traffic.ErrNetworkFailure)
	assert.Equal(t, 1, exec.failed)
	assert.Empty(t, exec.fulfilled)
}

func TestFromMockAttachesOutOfBandMarker(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, nil)

	mock := traffic.NewResponse()
	mock.Status = 200
	mock.Body = []byte(`{"id":42}`)

	resp, err := s.FromMock(context.Background(), traffic.NewRequest(), mock)
	require.NoError(t, err)
	assert.True(t, resp.Synthetic)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "OK", resp.StatusText)
	assert.Equal(t, []byte(`{"id":42}`), resp.Body)
	// 标记不以头部形式出现
	assert.False(t, resp.Headers.Has("x-mockrelay-synthetic"))

	// 原始 Mock 对象未被污染
	assert.False(t, mock.Synthetic)
}

func TestFromMockFulfillErrorFallsBack(t *testing.T) {
	exec := &fakeExecutor{fulfillErr: errors.New("target detached")}
	s := New(exec, nil)

	mock := traffic.NewResponse()
	mock.Status = 200

	resp, err := s.FromMock(context.Background(), traffic.NewRequest(), mock)
	require.NoError(t, err)
	assert.False(t, resp.Synthetic)
	assert.Len(t, exec.passed, 1)
}

func TestFromMockNilFallsBack(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, nil)

	resp, err := s.FromMock(context.Background(), traffic.NewRequest(), nil)
	require.NoError(t, err)
	assert.False(t, resp.Synthetic)
}
