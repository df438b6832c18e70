package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	api "glancesync/pkg/api"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"

	"github.com/jedib0t/go-pretty/v6/table"
)

// App 命令行应用状态与输出封装
type App struct {
	mu  sync.Mutex
	svc api.Service
	out io.Writer

	autoResume bool
	autoAbort  bool
	decided    int
}

// NewApp 创建应用实例
func NewApp(svc api.Service, out io.Writer) *App {
	return &App{svc: svc, out: out}
}

// SetAutoDecision 设置自动处理拦截的方式，两者同时开启时以丢弃为准
func (a *App) SetAutoDecision(resume, abort bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.autoResume = resume
	a.autoAbort = abort
}

// PrintEntries 输出当前页
func (a *App) PrintEntries() {
	renderEntries(a.out, a.svc.Entries(), a.svc.Window())
}

// PrintPending 输出未决拦截
func (a *App) PrintPending() {
	pending := a.svc.Pending()
	if len(pending) == 0 {
		return
	}
	t := newTable(a.out)
	t.AppendHeader(table.Row{"ID", "Stage", "State", "Method", "URL", "Armed"})
	for _, p := range pending {
		t.AppendRow(table.Row{p.ID, p.Stage, p.State, p.Method, p.URL, p.ArmedAt.Format(time.TimeOnly)})
	}
	t.Render()
}

// HandleEvent 输出事件，并按设置自动处理新的拦截
func (a *App) HandleEvent(ctx context.Context, evt model.Event) error {
	fmt.Fprintln(a.out, formatEvent(evt))
	if evt.Type != model.EventIntercepted {
		return nil
	}

	a.mu.Lock()
	resume, abort := a.autoResume, a.autoAbort
	a.mu.Unlock()

	var err error
	switch {
	case abort:
		err = a.svc.Abort(ctx, evt.ExchangeID)
	case resume && evt.Stage == model.PauseRequest:
		var req traffic.Request
		if req, err = a.svc.DraftRequest(evt.ExchangeID); err == nil {
			err = a.svc.ResumeRequest(ctx, evt.ExchangeID, req)
		}
	case resume && evt.Stage == model.PauseResponse:
		var res traffic.Response
		if res, err = a.svc.DraftResponse(evt.ExchangeID); err == nil {
			err = a.svc.ResumeResponse(ctx, evt.ExchangeID, res)
		}
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("auto decision for %s: %w", evt.ExchangeID, err)
	}
	a.mu.Lock()
	a.decided++
	a.mu.Unlock()
	return nil
}

// Decided 自动处理的拦截数
func (a *App) Decided() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.decided
}

// PrintStatus 输出后端状态
func (a *App) PrintStatus(st model.Status, stats model.StreamStats) {
	t := newTable(a.out)
	t.AppendHeader(table.Row{"Key", "Value"})
	t.AppendRows([]table.Row{
		{"Version", st.Version},
		{"Proxy", st.ProxyAddr},
		{"MCP", mcpLabel(st)},
		{"Stream received", stats.Received},
		{"Stream malformed", stats.Malformed},
	})
	t.Render()
}

func mcpLabel(st model.Status) string {
	if !st.MCPEnabled {
		return "disabled"
	}
	return strconv.Itoa(st.MCPSessions) + " sessions"
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderEntries 新到旧输出交换列表与分页信息
func renderEntries(w io.Writer, entries []traffic.Exchange, win model.PageWindow) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No traffic.")
	} else {
		t := newTable(w)
		t.AppendHeader(table.Row{"ID", "Method", "Status", "URL", "Duration", "Modified"})
		for _, e := range entries {
			t.AppendRow(table.Row{e.ID, e.Method, statusLabel(e), e.URL, e.Duration.Round(time.Millisecond), e.ModifiedBy})
		}
		t.Render()
	}
	mode := "history"
	if win.LiveTail() {
		mode = "live"
	}
	fmt.Fprintf(w, "page %d/%d (%s), %d total\n", win.Page, win.PageCount(), mode, win.Total)
}

func statusLabel(e traffic.Exchange) string {
	if !e.Completed() {
		return "pending"
	}
	return strconv.Itoa(e.Status)
}

func formatEvent(evt model.Event) string {
	switch evt.Type {
	case model.EventCompleted:
		return fmt.Sprintf("+ %s %s %s (total %d)", evt.ExchangeID, evt.Method, evt.URL, evt.Total)
	case model.EventIntercepted:
		return fmt.Sprintf("|| %s paused at %s: %s %s", evt.ExchangeID, evt.Stage, evt.Method, evt.URL)
	case model.EventSuperseded:
		return fmt.Sprintf("~ %s still pending, newer pause is active", evt.ExchangeID)
	case model.EventResumed:
		return fmt.Sprintf("> %s resumed", evt.ExchangeID)
	case model.EventAborted:
		return fmt.Sprintf("x %s aborted", evt.ExchangeID)
	case model.EventPageLoaded:
		return fmt.Sprintf("= page %d loaded (total %d)", evt.Page, evt.Total)
	case model.EventCleared:
		return "= traffic cleared"
	case model.EventMalformed:
		return "! dropped malformed message: " + evt.Error
	case model.EventStreamClose:
		if evt.Error != "" {
			return "! stream closed: " + evt.Error
		}
		return "! stream closed"
	default:
		return string(evt.Type)
	}
}
