package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockrelay/pkg/domain"
	"mockrelay/pkg/traffic"
)

func TestRequestRoundTrip(t *testing.T) {
	req := traffic.NewRequest()
	req.Method = "POST"
	req.URL = "https://api.example.com/users"
	req.Headers.Add("Content-Type", "application/json")
	req.Headers.Add("Set-Cookie", "a=1")
	req.Headers.Add("set-cookie", "b=2")
	req.Body = []byte(`{"name":"alice"}`)
	req.Meta = traffic.TransportMeta{
		Mode:        "cors",
		CachePolicy: "no-cache",
		Credentials: "include",
		KeepAlive:   true,
	}

	env := domain.Envelope{
		CorrelationID: "corr-1",
		InterceptedAt: time.Now(),
		Request:       req,
	}

	msg, ok := Parse(Encode(EncodeRequest(env)))
	require.True(t, ok)
	assert.Equal(t, TypeRequest, msg.Type)
	assert.Equal(t, domain.CorrelationID("corr-1"), msg.CorrelationID)

	back, ok := DecodeRequest(msg)
	require.True(t, ok)
	assert.Equal(t, req.Method, back.Method)
	assert.Equal(t, req.URL, back.URL)
	assert.True(t, req.Headers.Equal(back.Headers))
	assert.Equal(t, req.Body, back.Body)
	assert.Equal(t, req.Meta, back.Meta)
}

func TestRequestRoundTripNoBody(t *testing.T) {
	req := traffic.NewRequest()
	req.Method = "GET"
	req.URL = "https://example.com/"

	env := domain.Envelope{CorrelationID: "c", InterceptedAt: time.Now(), Request: req}
	back, ok := DecodeRequest(EncodeRequest(env))
	require.True(t, ok)
	assert.Nil(t, back.Body)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, ok := Parse([]byte("not json"))
	assert.False(t, ok)

	_, ok = Parse([]byte(`{"correlationId":"x"}`))
	assert.False(t, ok)
}

func TestDecodeReplyUseMock(t *testing.T) {
	msg := Message{
		Type:          TypeDecision,
		CorrelationID: "c1",
		Payload: []byte(`{"kind":"use_mock","response":{
			"status":200,"statusText":"OK",
			"headers":[{"name":"Content-Type","value":"application/json"}],
			"body":"eyJpZCI6NDJ9"}}`),
	}
	reply := DecodeReply(msg)
	require.Equal(t, domain.ReplyUseMock, reply.Kind)
	assert.Equal(t, 200, reply.Response.Status)
	assert.Equal(t, "application/json", reply.Response.Headers.Get("content-type"))
	assert.Equal(t, []byte(`{"id":42}`), reply.Response.Body)
}

func TestDecodeReplyFailOpen(t *testing.T) {
	cases := map[string]Message{
		"wrong type":     {Type: TypeKeepaliveRequest, Payload: []byte(`{"kind":"use_mock"}`)},
		"empty payload":  {Type: TypeDecision},
		"unknown kind":   {Type: TypeDecision, Payload: []byte(`{"kind":"reject"}`)},
		"missing kind":   {Type: TypeDecision, Payload: []byte(`{}`)},
		"no response":    {Type: TypeDecision, Payload: []byte(`{"kind":"use_mock"}`)},
		"missing status": {Type: TypeDecision, Payload: []byte(`{"kind":"use_mock","response":{"statusText":"OK"}}`)},
		"bad body":       {Type: TypeDecision, Payload: []byte(`{"kind":"use_mock","response":{"status":200,"body":"%%%"}}`)},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			reply := DecodeReply(msg)
			assert.Equal(t, domain.ReplyPassThrough, reply.Kind)
			assert.Nil(t, reply.Response)
		})
	}
}

func TestDecodeReplyStatusZeroKept(t *testing.T) {
	// 状态码 0 是明确的网络错误信号，必须原样保留给合成层
	msg := Message{
		Type:    TypeDecision,
		Payload: []byte(`{"kind":"use_mock","response":{"status":0}}`),
	}
	reply := DecodeReply(msg)
	require.Equal(t, domain.ReplyUseMock, reply.Kind)
	assert.Equal(t, 0, reply.Response.Status)
}

func TestEncodeIntegrity(t *testing.T) {
	msg, ok := Parse(Encode(EncodeIntegrity("1.2.0", "abc123")))
	require.True(t, ok)
	assert.Equal(t, TypeIntegrityCheckResponse, msg.Type)
	assert.Contains(t, string(msg.Payload), `"version":"1.2.0"`)
	assert.Contains(t, string(msg.Payload), `"build":"abc123"`)
}
