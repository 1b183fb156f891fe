package control

import (
	"encoding/base64"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"mockrelay/pkg/domain"
	"mockrelay/pkg/traffic"
)

// wireRequest 请求的线上形态；Body 以 base64 携带，nil 表示无请求体
type wireRequest struct {
	Method   string                `json:"method"`
	URL      string                `json:"url"`
	Headers  *traffic.Header       `json:"headers"`
	Body     *string               `json:"body,omitempty"`
	Resource string                `json:"resource,omitempty"`
	Meta     traffic.TransportMeta `json:"meta"`
}

// wireResponse 响应的线上形态
type wireResponse struct {
	Status       int             `json:"status"`
	StatusText   string          `json:"statusText,omitempty"`
	Headers      *traffic.Header `json:"headers,omitempty"`
	Body         *string         `json:"body,omitempty"`
	Synthetic    bool            `json:"synthetic,omitempty"`
	NetworkError bool            `json:"networkError,omitempty"`
}

type requestPayload struct {
	InterceptedAt int64       `json:"interceptedAt"`
	Request       wireRequest `json:"request"`
}

type responsePayload struct {
	Request      wireRequest   `json:"request"`
	Response     *wireResponse `json:"response,omitempty"`
	NetworkError bool          `json:"networkError,omitempty"`
}

func toWireRequest(req *traffic.Request) wireRequest {
	w := wireRequest{
		Method:   req.Method,
		URL:      req.URL,
		Headers:  req.Headers,
		Resource: req.Resource,
		Meta:     req.Meta,
	}
	if w.Headers == nil {
		w.Headers = traffic.NewHeader()
	}
	if req.Body != nil {
		s := base64.StdEncoding.EncodeToString(req.Body)
		w.Body = &s
	}
	return w
}

func fromWireRequest(w wireRequest) (*traffic.Request, bool) {
	req := traffic.NewRequest()
	req.Method = w.Method
	req.URL = w.URL
	req.Resource = w.Resource
	req.Meta = w.Meta
	if w.Headers != nil {
		req.Headers = w.Headers.Clone()
	}
	if w.Body != nil {
		b, err := base64.StdEncoding.DecodeString(*w.Body)
		if err != nil {
			return nil, false
		}
		req.Body = b
	}
	return req, true
}

func toWireResponse(resp *traffic.Response) *wireResponse {
	if resp == nil {
		return nil
	}
	w := &wireResponse{
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Headers:    resp.Headers,
		Synthetic:  resp.Synthetic,
	}
	if resp.Body != nil {
		s := base64.StdEncoding.EncodeToString(resp.Body)
		w.Body = &s
	}
	return w
}

// Encode 将消息编码为单条 JSON 帧
func Encode(msg Message) []byte {
	out, _ := sjson.SetBytes([]byte(`{}`), "type", msg.Type)
	if msg.CorrelationID != "" {
		out, _ = sjson.SetBytes(out, "correlationId", string(msg.CorrelationID))
	}
	if len(msg.Payload) > 0 {
		out, _ = sjson.SetRawBytes(out, "payload", msg.Payload)
	}
	return out
}

// Parse 宽容解析一条入站帧；无法识别时返回 false，绝不报错
func Parse(raw []byte) (Message, bool) {
	if !gjson.ValidBytes(raw) {
		return Message{}, false
	}
	t := gjson.GetBytes(raw, "type").String()
	if t == "" {
		return Message{}, false
	}
	msg := Message{
		Type:          t,
		CorrelationID: domain.CorrelationID(gjson.GetBytes(raw, "correlationId").String()),
	}
	if p := gjson.GetBytes(raw, "payload"); p.Exists() {
		msg.Payload = []byte(p.Raw)
	}
	return msg, true
}

// EncodeRequest 构造发往控制器的 REQUEST 消息
func EncodeRequest(env domain.Envelope) Message {
	payload, _ := json.Marshal(requestPayload{
		InterceptedAt: env.InterceptedAt.UnixMilli(),
		Request:       toWireRequest(env.Request),
	})
	return Message{Type: TypeRequest, CorrelationID: env.CorrelationID, Payload: payload}
}

// DecodeRequest 从 REQUEST 消息还原拦截快照，供控制器侧与测试使用
func DecodeRequest(msg Message) (*traffic.Request, bool) {
	if msg.Type != TypeRequest {
		return nil, false
	}
	var p requestPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, false
	}
	return fromWireRequest(p.Request)
}

// EncodeResponse 构造观测通知；resp 为 nil 表示调用以网络错误收场
func EncodeResponse(env domain.Envelope, resp *traffic.Response) Message {
	payload, _ := json.Marshal(responsePayload{
		Request:      toWireRequest(env.Request),
		Response:     toWireResponse(resp),
		NetworkError: resp == nil,
	})
	return Message{Type: TypeResponse, CorrelationID: env.CorrelationID, Payload: payload}
}

// EncodeIntegrity 构造完整性检查应答，携带构建与版本标识
func EncodeIntegrity(version, build string) Message {
	payload, _ := sjson.SetBytes([]byte(`{}`), "version", version)
	payload, _ = sjson.SetBytes(payload, "build", build)
	return Message{Type: TypeIntegrityCheckResponse, Payload: payload}
}

// EncodeMockingEnabled 构造激活确认，携带当前已启用会话数
func EncodeMockingEnabled(active int) Message {
	payload, _ := sjson.SetBytes([]byte(`{}`), "active", active)
	return Message{Type: TypeMockingEnabled, Payload: payload}
}

// DecodeReply 解释仲裁回复。任何缺失、未知或畸形内容都降级为放行，
// 损坏的控制器永远不能阻塞真实流量。
func DecodeReply(msg Message) domain.Reply {
	if msg.Type != TypeDecision || len(msg.Payload) == 0 {
		return domain.PassThrough()
	}
	switch gjson.GetBytes(msg.Payload, "kind").String() {
	case "pass_through":
		return domain.PassThrough()
	case "use_mock":
		res := gjson.GetBytes(msg.Payload, "response")
		if !res.IsObject() {
			return domain.PassThrough()
		}
		status := res.Get("status")
		if !status.Exists() {
			return domain.PassThrough()
		}
		resp := traffic.NewResponse()
		resp.Status = int(status.Int())
		resp.StatusText = res.Get("statusText").String()
		resp.Headers = traffic.NewHeader()
		ok := true
		res.Get("headers").ForEach(func(_, f gjson.Result) bool {
			name := f.Get("name")
			if !name.Exists() {
				ok = false
				return false
			}
			resp.Headers.Add(name.String(), f.Get("value").String())
			return true
		})
		if !ok {
			return domain.PassThrough()
		}
		if body := res.Get("body"); body.Exists() {
			b, err := base64.StdEncoding.DecodeString(body.String())
			if err != nil {
				return domain.PassThrough()
			}
			resp.Body = b
		}
		return domain.UseMock(resp)
	default:
		return domain.PassThrough()
	}
}
