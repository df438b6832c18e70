package traffic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// Header 有序多值头部，保留名称首次出现的顺序以及同名值的顺序，名称大小写敏感
type Header struct {
	names  []string
	values map[string][]string
}

// NewHeader 创建空头部
func NewHeader() Header {
	return Header{values: make(map[string][]string)}
}

func (h *Header) init() {
	if h.values == nil {
		h.values = make(map[string][]string)
	}
}

// Get 获取指定名称的第一个值（大小写敏感）
func (h Header) Get(name string) string {
	if vs := h.values[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values 获取指定名称的全部值
func (h Header) Values(name string) []string {
	return h.values[name]
}

// Has 判断是否存在该名称
func (h Header) Has(name string) bool {
	_, ok := h.values[name]
	return ok
}

// Add 追加一个值
func (h *Header) Add(name, value string) {
	h.init()
	if _, ok := h.values[name]; !ok {
		h.names = append(h.names, name)
	}
	h.values[name] = append(h.values[name], value)
}

// Set 覆盖指定名称的全部值，已存在的名称保持原位置
func (h *Header) Set(name string, values ...string) {
	h.init()
	if _, ok := h.values[name]; !ok {
		h.names = append(h.names, name)
	}
	h.values[name] = append(make([]string, 0, len(values)), values...)
}

// Del 删除指定名称
func (h *Header) Del(name string) {
	if _, ok := h.values[name]; !ok {
		return
	}
	delete(h.values, name)
	for i, n := range h.names {
		if n == name {
			h.names = append(h.names[:i:i], h.names[i+1:]...)
			break
		}
	}
}

// Names 按顺序返回所有名称
func (h Header) Names() []string {
	return append([]string(nil), h.names...)
}

// Len 名称数量
func (h Header) Len() int {
	return len(h.names)
}

// Clone 深拷贝
func (h Header) Clone() Header {
	if h.values == nil {
		return Header{}
	}
	out := Header{
		names:  append([]string(nil), h.names...),
		values: make(map[string][]string, len(h.values)),
	}
	for k, vs := range h.values {
		out.values[k] = append([]string(nil), vs...)
	}
	return out
}

// ToHTTP 转换为 net/http 头部，名称保持原样不做规范化
func (h Header) ToHTTP() http.Header {
	out := make(http.Header, len(h.names))
	for _, n := range h.names {
		out[n] = append([]string(nil), h.values[n]...)
	}
	return out
}

// FromHTTP 从 net/http 头部构造，map 无序因此按名称排序
func FromHTTP(src http.Header) Header {
	out := NewHeader()
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Set(k, src[k]...)
	}
	return out
}

// MarshalJSON 按名称顺序编码为 {"name": ["v1", "v2"]}
func (h Header) MarshalJSON() ([]byte, error) {
	if h.values == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range h.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		vs := h.values[n]
		if vs == nil {
			vs = []string{}
		}
		val, err := json.Marshal(vs)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 按出现顺序解码，兼容单字符串值
func (h *Header) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*h = Header{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("header: expected object, got %v", tok)
	}

	out := NewHeader()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("header: unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("header %q: %w", name, err)
		}
		var vs []string
		if err := json.Unmarshal(raw, &vs); err != nil {
			var single string
			if err2 := json.Unmarshal(raw, &single); err2 != nil {
				return fmt.Errorf("header %q: %w", name, err)
			}
			vs = []string{single}
		}
		if len(vs) == 0 && !out.Has(name) {
			out.Set(name)
		}
		for _, v := range vs {
			out.Add(name, v)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*h = out
	return nil
}

// Modification 记录交换结果的产生方式
type Modification string

const (
	ModifiedNone       Modification = ""
	ModifiedMock       Modification = "mock"
	ModifiedBreakpoint Modification = "breakpoint"
	ModifiedEditor     Modification = "editor"
)

// Exchange 一次被代理观察到的 HTTP 请求/响应
type Exchange struct {
	ID              string        `json:"id"`
	Method          string        `json:"method"`
	URL             string        `json:"url"`
	RequestHeaders  Header        `json:"request_headers"`
	RequestBody     string        `json:"request_body"`
	Status          int           `json:"status"`
	ResponseHeaders Header        `json:"response_headers"`
	ResponseBody    string        `json:"response_body"`
	StartTime       time.Time     `json:"start_time"`
	Duration        time.Duration `json:"duration"`
	ModifiedBy      Modification  `json:"modified_by,omitempty"`
}

// Completed 是否已有最终状态码
func (e Exchange) Completed() bool {
	return e.Status != 0
}

// Clone 深拷贝
func (e Exchange) Clone() Exchange {
	out := e
	out.RequestHeaders = e.RequestHeaders.Clone()
	out.ResponseHeaders = e.ResponseHeaders.Clone()
	return out
}

// Request 中立的请求模型，用于恢复被拦截的请求或发起新请求
type Request struct {
	Method  string `json:"method"`
	URL     string `json:"url"`
	Headers Header `json:"headers"`
	Body    string `json:"body"`
}

// Response 中立的响应模型，用于恢复被拦截的响应
type Response struct {
	StatusCode int    `json:"status"`
	Headers    Header `json:"headers"`
	Body       string `json:"body"`
}

// NewRequest 创建初始化请求对象
func NewRequest() *Request {
	return &Request{
		Method:  http.MethodGet,
		Headers: NewHeader(),
	}
}

// NewResponse 创建初始化响应对象
func NewResponse() *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Headers:    NewHeader(),
	}
}
