package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"glancesync/internal/logger"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"

	"github.com/samber/lo"
)

// ErrStale 分页响应已被更新的请求取代
var ErrStale = errors.New("page response superseded by a newer request")

// Fetcher 分页数据来源
type Fetcher interface {
	Traffic(ctx context.Context, page, pageSize int) (*model.TrafficPage, error)
}

// Result 一次分页加载的结果，需经 Commit 才会生效
type Result struct {
	Generation uint64
	Window     model.PageWindow
	Entries    []traffic.Exchange // 旧到新
}

// Controller 分页控制器，记录当前展示的页以及后端总数
type Controller struct {
	mu          sync.Mutex
	fetcher     Fetcher
	defaultSize int
	generation  uint64
	window      model.PageWindow
	log         logger.Logger
}

// New 创建分页控制器，初始处于第一页的实时尾部模式
func New(f Fetcher, defaultSize int, l logger.Logger) *Controller {
	if l == nil {
		l = logger.NewNop()
	}
	if defaultSize <= 0 {
		defaultSize = 50
	}
	return &Controller{
		fetcher:     f,
		defaultSize: defaultSize,
		window:      model.PageWindow{Page: 1, PageSize: defaultSize},
		log:         l,
	}
}

// LoadPage 请求一页历史记录并反转为旧到新顺序，失败时当前窗口保持不变
func (c *Controller) LoadPage(ctx context.Context, page, pageSize int) (Result, error) {
	if page < 1 {
		page = 1
	}

	c.mu.Lock()
	if pageSize < 1 {
		pageSize = c.defaultSize
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	data, err := c.fetcher.Traffic(ctx, page, pageSize)
	if err != nil {
		c.log.Warn("加载分页失败", "page", page, "pageSize", pageSize, "error", err)
		return Result{}, fmt.Errorf("load page %d: %w", page, err)
	}

	entries := data.Entries
	if len(entries) > pageSize {
		entries = entries[:pageSize]
	}
	entries = lo.Reverse(append([]traffic.Exchange(nil), entries...))

	return Result{
		Generation: gen,
		Window:     model.PageWindow{Page: page, PageSize: pageSize, Total: data.Total},
		Entries:    entries,
	}, nil
}

// Commit 仅当结果属于最新一次请求时生效，返回是否已生效
func (c *Controller) Commit(r Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Generation != c.generation {
		c.log.Debug("丢弃过期的分页响应", "page", r.Window.Page, "generation", r.Generation, "latest", c.generation)
		return false
	}
	c.window = r.Window
	return true
}

// Cancel 使所有进行中的加载失效
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
}

// Current 当前生效的窗口
func (c *Controller) Current() model.PageWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// IncrementTotal 新的已完成交换到达时总数加一
func (c *Controller) IncrementTotal() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.Total++
	return c.window.Total
}

// Reset 后端历史清空后回到空窗口，保持当前页大小
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.Total = 0
	c.window.Page = 1
}

// SetDefaultSize 修改默认页大小，仅影响尚未加载的页
func (c *Controller) SetDefaultSize(size int) {
	if size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultSize = size
	if c.window.Total == 0 {
		c.window.PageSize = size
	}
}
