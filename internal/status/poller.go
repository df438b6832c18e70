package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"glancesync/internal/logger"
	"glancesync/pkg/model"

	"github.com/benbjohnson/clock"
)

// Fetcher 后端状态来源
type Fetcher interface {
	Status(ctx context.Context) (*model.Status, error)
}

// Config 轮询配置
type Config struct {
	Fetcher  Fetcher
	Interval time.Duration
	Clock    clock.Clock
	Logger   logger.Logger
}

// Poller 定期拉取后端状态，保留最近一次结果与错误
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	clock    clock.Clock
	log      logger.Logger

	mu      sync.RWMutex
	last    *model.Status
	lastAt  time.Time
	lastErr error
	polls   int
}

// New 创建轮询器
func New(cfg Config) *Poller {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		fetcher:  cfg.Fetcher,
		interval: interval,
		clock:    clk,
		log:      l.With("component", "status"),
	}
}

// Run 立即拉取一次，之后按间隔拉取直到 ctx 取消
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	_, _ = p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = p.Poll(ctx)
		}
	}
}

// Poll 拉取一次状态，失败时保留上一次的成功结果
func (p *Poller) Poll(ctx context.Context) (*model.Status, error) {
	st, err := p.fetcher.Status(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("获取后端状态失败", "error", err)
		}
		p.lastErr = fmt.Errorf("poll status: %w", err)
		return nil, p.lastErr
	}
	p.last = st
	p.lastAt = p.clock.Now()
	p.lastErr = nil
	p.log.Debug("后端状态已更新", "version", st.Version, "proxy", st.ProxyAddr, "mcpSessions", st.MCPSessions)
	return st, nil
}

// Last 最近一次成功的状态
func (p *Poller) Last() (model.Status, time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return model.Status{}, time.Time{}, false
	}
	return *p.last, p.lastAt, true
}

// LastErr 最近一次拉取的错误，成功后清空
func (p *Poller) LastErr() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Polls 已拉取次数
func (p *Poller) Polls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.polls
}
