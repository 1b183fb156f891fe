package cdp

import (
	"encoding/json"
	"sort"
	"strings"

	"mockrelay/pkg/traffic"

	"github.com/mafredri/cdp/protocol/fetch"
)

// ToNeutralRequest 将 CDP 拦截事件转换为中立 Request 快照
func ToNeutralRequest(ev *fetch.RequestPausedReply) *traffic.Request {
	req := traffic.NewRequest()
	req.ID = string(ev.RequestID)
	req.URL = ev.Request.URL
	req.Method = ev.Request.Method
	req.Resource = strings.ToLower(string(ev.ResourceType))

	// CDP 的请求头是无序映射，按键排序保证快照稳定
	var headers map[string]string
	if len(ev.Request.Headers) > 0 {
		if err := json.Unmarshal(ev.Request.Headers, &headers); err == nil {
			keys := make([]string, 0, len(headers))
			for k := range headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				req.Headers.Add(k, headers[k])
			}
		}
	}

	if ev.Request.PostData != nil {
		req.Body = []byte(*ev.Request.PostData)
	}

	// 传输元数据尽力从协议信息与标准头还原
	req.Meta.Mode = req.Headers.Get("sec-fetch-mode")
	req.Meta.Referrer = req.Headers.Get("referer")
	req.Meta.ReferrerPolicy = ev.Request.ReferrerPolicy
	if cc := req.Headers.Get("cache-control"); strings.Contains(cc, "only-if-cached") {
		req.Meta.CachePolicy = "only-if-cached"
	}

	return req
}

// ToNeutralResponse 将响应阶段的拦截事件转换为中立 Response
func ToNeutralResponse(ev *fetch.RequestPausedReply, body []byte) *traffic.Response {
	res := traffic.NewResponse()
	if ev.ResponseStatusCode != nil {
		res.Status = *ev.ResponseStatusCode
	}
	if ev.ResponseStatusText != nil && *ev.ResponseStatusText != "" {
		res.StatusText = *ev.ResponseStatusText
	}
	res.Headers = traffic.NewHeader()
	for _, h := range ev.ResponseHeaders {
		res.Headers.Add(h.Name, h.Value)
	}
	res.Body = body
	return res
}

// ToHeaderEntries 将中立 Header 转换为 CDP Header 条目，保持顺序
func ToHeaderEntries(h *traffic.Header) []fetch.HeaderEntry {
	if h == nil {
		return nil
	}
	fields := h.Fields()
	entries := make([]fetch.HeaderEntry, 0, len(fields))
	for _, f := range fields {
		entries = append(entries, fetch.HeaderEntry{Name: f.Name, Value: f.Value})
	}
	return entries
}
