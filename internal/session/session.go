package session

import (
	"context"
	"fmt"
	"sync"

	"glancesync/internal/intercept"
	"glancesync/internal/logger"
	"glancesync/internal/pagination"
	"glancesync/internal/store"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"

	"github.com/benbjohnson/clock"
)

// Backend 会话依赖的后端能力
type Backend interface {
	pagination.Fetcher
	intercept.Controller
	ClearTraffic(ctx context.Context) error
}

// Recorder 观察推送中的交换
type Recorder interface {
	Observe(ex traffic.Exchange)
}

// Config 会话配置
type Config struct {
	Backend     Backend
	PageSize    int
	Recorder    Recorder
	EventBuffer int
	Clock       clock.Clock
	Logger      logger.Logger
}

// Session 流量同步会话：合并分页结果与实时推送，唯一修改 Store 的地方
type Session struct {
	mu       sync.Mutex
	backend  Backend
	store    *store.Store
	pager    *pagination.Controller
	pauses   *intercept.Coordinator
	recorder Recorder
	events   chan model.Event
	log      logger.Logger
}

// New 创建会话
func New(cfg Config) *Session {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = 256
	}
	events := make(chan model.Event, buf)
	return &Session{
		backend: cfg.Backend,
		store:   store.New(),
		pager:   pagination.New(cfg.Backend, cfg.PageSize, l.With("component", "pagination")),
		pauses: intercept.New(intercept.Config{
			Controller: cfg.Backend,
			Events:     events,
			Clock:      cfg.Clock,
			Logger:     l,
		}),
		recorder: cfg.Recorder,
		events:   events,
		log:      l.With("component", "session"),
	}
}

// LoadPage 加载指定页并整体替换 Store，pageSize 小于 1 时使用默认页大小；过期响应返回 pagination.ErrStale 且不产生任何修改
func (s *Session) LoadPage(ctx context.Context, page, pageSize int) error {
	res, err := s.pager.LoadPage(ctx, page, pageSize)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.pager.Commit(res) {
		s.mu.Unlock()
		return fmt.Errorf("load page %d: %w", res.Window.Page, pagination.ErrStale)
	}
	s.store.Replace(res.Entries)
	s.mu.Unlock()

	s.log.Info("分页已加载", "page", res.Window.Page, "pageSize", res.Window.PageSize, "total", res.Window.Total, "entries", len(res.Entries))
	s.emit(model.Event{Type: model.EventPageLoaded, Page: res.Window.Page, Total: res.Window.Total})
	return nil
}

// NextPage 加载更早的一页，已是最后一页时不做任何事
func (s *Session) NextPage(ctx context.Context) error {
	w := s.pager.Current()
	if !w.HasNext() {
		return nil
	}
	return s.LoadPage(ctx, w.Page+1, w.PageSize)
}

// PrevPage 加载更新的一页，已是第一页时不做任何事
func (s *Session) PrevPage(ctx context.Context) error {
	w := s.pager.Current()
	if !w.HasPrev() {
		return nil
	}
	return s.LoadPage(ctx, w.Page-1, w.PageSize)
}

// Clear 清空后端历史，成功后清空本地 Store 并回到第一页
func (s *Session) Clear(ctx context.Context) error {
	if err := s.backend.ClearTraffic(ctx); err != nil {
		return fmt.Errorf("clear traffic: %w", err)
	}

	s.mu.Lock()
	s.pager.Cancel()
	s.store.Clear()
	s.pager.Reset()
	s.mu.Unlock()

	s.log.Info("流量历史已清空")
	s.emit(model.Event{Type: model.EventCleared, Page: 1})
	return nil
}

// SetPageSize 修改默认页大小
func (s *Session) SetPageSize(size int) {
	s.pager.SetDefaultSize(size)
}

// Window 当前分页窗口
func (s *Session) Window() model.PageWindow {
	return s.pager.Current()
}

// Entries Store 内容，旧到新
func (s *Session) Entries() []traffic.Exchange {
	return s.store.All()
}

// Exchange 按ID查询 Store 中的交换
func (s *Session) Exchange(id string) (traffic.Exchange, bool) {
	return s.store.Get(id)
}

// Store 只读访问入口，供视图投影订阅
func (s *Session) Store() *store.Store {
	return s.store
}

// Intercepts 拦截协调器
func (s *Session) Intercepts() *intercept.Coordinator {
	return s.pauses
}

// Events 会话事件，发送端不阻塞，消费不及时会丢失事件
func (s *Session) Events() <-chan model.Event {
	return s.events
}
