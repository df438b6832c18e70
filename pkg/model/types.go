package model

import (
	"time"

	"glancesync/pkg/traffic"
)

// PauseKind 拦截阶段
type PauseKind string

const (
	PauseRequest  PauseKind = "request"
	PauseResponse PauseKind = "response"
)

// Valid 是否为已知阶段
func (k PauseKind) Valid() bool {
	return k == PauseRequest || k == PauseResponse
}

// PauseState 拦截会话状态
type PauseState string

const (
	PauseArmed   PauseState = "armed"
	PauseEditing PauseState = "editing"
	PauseResumed PauseState = "resumed"
	PauseAborted PauseState = "aborted"
)

// Terminal 是否为终态
func (s PauseState) Terminal() bool {
	return s == PauseResumed || s == PauseAborted
}

// PageWindow 当前展示的历史分页窗口
type PageWindow struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// LiveTail 第一页即实时尾部模式
func (w PageWindow) LiveTail() bool {
	return w.Page == 1
}

// PageCount 总页数，至少为 1
func (w PageWindow) PageCount() int {
	if w.PageSize <= 0 || w.Total <= 0 {
		return 1
	}
	return (w.Total + w.PageSize - 1) / w.PageSize
}

// HasPrev 是否存在上一页
func (w PageWindow) HasPrev() bool {
	return w.Page > 1
}

// HasNext 是否存在下一页
func (w PageWindow) HasNext() bool {
	return w.Page*w.PageSize < w.Total
}

// TrafficPage 后端分页查询结果，Entries 为新到旧
type TrafficPage struct {
	Entries  []traffic.Exchange `json:"entries"`
	Total    int                `json:"total"`
	Page     int                `json:"page,omitempty"`
	PageSize int                `json:"pageSize,omitempty"`
}

// EventType 会话事件类型
type EventType string

const (
	EventCompleted   EventType = "completed"
	EventIntercepted EventType = "intercepted"
	EventSuperseded  EventType = "superseded"
	EventResumed     EventType = "resumed"
	EventAborted     EventType = "aborted"
	EventPageLoaded  EventType = "page_loaded"
	EventCleared     EventType = "cleared"
	EventMalformed   EventType = "malformed"
	EventStreamClose EventType = "stream_closed"
)

// Event 推送给界面层的事件
type Event struct {
	Type       EventType `json:"type"`
	ExchangeID string    `json:"exchangeId,omitempty"`
	URL        string    `json:"url,omitempty"`
	Method     string    `json:"method,omitempty"`
	Stage      PauseKind `json:"stage,omitempty"`
	Page       int       `json:"page,omitempty"`
	Total      int       `json:"total,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// PendingItem 一个待处理的拦截会话快照
type PendingItem struct {
	ID       string           `json:"id"`
	Stage    PauseKind        `json:"stage"`
	State    PauseState       `json:"state"`
	URL      string           `json:"url"`
	Method   string           `json:"method"`
	Exchange traffic.Exchange `json:"exchange"`
	ArmedAt  time.Time        `json:"armedAt"`
	Updates  int              `json:"updates"`
}

// Filter 列表视图过滤条件
type Filter struct {
	Text       string   `json:"text"`
	Methods    []string `json:"methods"`
	URLPattern string   `json:"urlPattern"`
	URLMode    string   `json:"urlMode"` // glob、prefix、exact、regex
}

// Status 后端运行状态
type Status struct {
	Version     string `json:"version"`
	ProxyAddr   string `json:"proxy_addr"`
	MCPSessions int    `json:"mcp_sessions"`
	MCPEnabled  bool   `json:"mcp_enabled"`
}

// BackendConfig 后端配置，仅使用其中与展示相关的字段
type BackendConfig struct {
	ProxyAddr       string `json:"proxy_addr"`
	APIAddr         string `json:"api_addr"`
	MCPAddr         string `json:"mcp_addr"`
	MCPEnabled      bool   `json:"mcp_enabled"`
	HistoryLimit    int    `json:"history_limit"`
	MaxResponseSize int64  `json:"max_response_size"`
	DefaultPageSize int    `json:"default_page_size"`
}

// StreamStats 推送通道统计
type StreamStats struct {
	Received    int64 `json:"received"`
	Completed   int64 `json:"completed"`
	Intercepted int64 `json:"intercepted"`
	Malformed   int64 `json:"malformed"`
}
