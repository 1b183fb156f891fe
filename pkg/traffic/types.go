package traffic

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ErrNetworkFailure 表示刻意构造的网络错误（状态码 0 的 Mock 决策）
var ErrNetworkFailure = errors.New("traffic: synthetic network failure")

// PassThroughHeader 内部信令头，请求放行前必须剥离，不能泄漏到真实服务器
const PassThroughHeader = "x-mockrelay-passthrough"

// Field 单个头部条目
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Header 有序、大小写不敏感的头部多值映射
type Header struct {
	fields []Field
}

// NewHeader 创建空头部
func NewHeader() *Header {
	return &Header{}
}

// Get 获取首个匹配的值（大小写不敏感）
func (h *Header) Get(key string) string {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, key) {
			return h.fields[i].Value
		}
	}
	return ""
}

// Has 判断头部是否存在
func (h *Header) Has(key string) bool {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, key) {
			return true
		}
	}
	return false
}

// Values 按出现顺序返回全部匹配值
func (h *Header) Values(key string) []string {
	var out []string
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, key) {
			out = append(out, h.fields[i].Value)
		}
	}
	return out
}

// Add 追加一个条目，保留已有同名条目
func (h *Header) Add(key, value string) {
	h.fields = append(h.fields, Field{Name: key, Value: value})
}

// Set 覆盖为单值：替换首个匹配条目并移除其余同名条目
func (h *Header) Set(key, value string) {
	out := h.fields[:0]
	done := false
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, key) {
			if !done {
				out = append(out, Field{Name: key, Value: value})
				done = true
			}
			continue
		}
		out = append(out, f)
	}
	if !done {
		out = append(out, Field{Name: key, Value: value})
	}
	h.fields = out
}

// Del 移除全部同名条目
func (h *Header) Del(key string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, key) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Len 条目总数
func (h *Header) Len() int { return len(h.fields) }

// Fields 返回条目副本，保持插入顺序
func (h *Header) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Clone 深拷贝
func (h *Header) Clone() *Header {
	return &Header{fields: h.Fields()}
}

// Equal 集合意义上的相等：忽略条目顺序与键大小写，保留重复计数
func (h *Header) Equal(other *Header) bool {
	if h.Len() != other.Len() {
		return false
	}
	count := make(map[Field]int, len(h.fields))
	for _, f := range h.fields {
		count[Field{Name: strings.ToLower(f.Name), Value: f.Value}]++
	}
	for _, f := range other.fields {
		k := Field{Name: strings.ToLower(f.Name), Value: f.Value}
		count[k]--
		if count[k] < 0 {
			return false
		}
	}
	return true
}

// MarshalJSON 序列化为条目数组，保持顺序
func (h *Header) MarshalJSON() ([]byte, error) {
	if h.fields == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.fields)
}

// UnmarshalJSON 从条目数组还原
func (h *Header) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &h.fields)
}

// TransportMeta 请求的传输元数据快照
type TransportMeta struct {
	Mode           string `json:"mode,omitempty"`
	CachePolicy    string `json:"cachePolicy,omitempty"`
	RedirectPolicy string `json:"redirectPolicy,omitempty"`
	Credentials    string `json:"credentials,omitempty"`
	Referrer       string `json:"referrer,omitempty"`
	ReferrerPolicy string `json:"referrerPolicy,omitempty"`
	Integrity      string `json:"integrity,omitempty"`
	Streaming      bool   `json:"streaming,omitempty"`
	KeepAlive      bool   `json:"keepAlive,omitempty"`
}

// Request 中立的请求模型，拦截时一次性快照
type Request struct {
	ID       string        // 宿主侧事务ID
	URL      string        // 完整URL
	Method   string        // HTTP方法
	Headers  *Header       // 请求头
	Body     []byte        // 请求体，nil 表示无
	Resource string        // 资源类型 (如 document, xhr, fetch)
	Meta     TransportMeta // 传输元数据
}

// Response 中立的响应模型
type Response struct {
	Status     int     // 状态码
	StatusText string  // 状态文本
	Headers    *Header // 响应头
	Body       []byte  // 响应体
	Synthetic  bool    // 是否为合成响应；带外标记，绝不写入头部
}

// NewRequest 创建初始化请求对象
func NewRequest() *Request {
	return &Request{Headers: NewHeader()}
}

// NewResponse 创建初始化响应对象
func NewResponse() *Response {
	return &Response{
		Status:     http.StatusOK,
		StatusText: http.StatusText(http.StatusOK),
		Headers:    NewHeader(),
	}
}

// Clone 深拷贝请求快照
func (r *Request) Clone() *Request {
	out := *r
	if r.Headers != nil {
		out.Headers = r.Headers.Clone()
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// Clone 深拷贝响应
func (r *Response) Clone() *Response {
	out := *r
	if r.Headers != nil {
		out.Headers = r.Headers.Clone()
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}
