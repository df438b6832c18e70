package intercept

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"glancesync/internal/logger"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"

	"github.com/benbjohnson/clock"
)

var (
	ErrNotFound     = errors.New("no pending intercept for exchange")
	ErrTerminal     = errors.New("intercept already resolved")
	ErrInFlight     = errors.New("intercept decision already in flight")
	ErrInvalidState = errors.New("operation not allowed in current intercept state")
	ErrWrongPhase   = errors.New("intercept phase does not match operation")
)

// Controller 后端拦截控制接口
type Controller interface {
	ContinueRequest(ctx context.Context, id string, req traffic.Request) error
	ContinueResponse(ctx context.Context, id string, res traffic.Response) error
	Abort(ctx context.Context, id string) error
}

// Config 协调器配置
type Config struct {
	Controller Controller
	Events     chan<- model.Event
	Clock      clock.Clock
	Logger     logger.Logger
}

// Coordinator 拦截会话状态机：Armed -> Editing -> Resumed | Aborted
type Coordinator struct {
	mu     sync.Mutex
	reg    *registry
	ctrl   Controller
	events chan<- model.Event
	clock  clock.Clock
	log    logger.Logger
}

// New 创建协调器
func New(cfg Config) *Coordinator {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Coordinator{
		reg:    newRegistry(),
		ctrl:   cfg.Controller,
		events: cfg.Events,
		clock:  clk,
		log:    l.With("component", "intercept"),
	}
}

// Arm 收到拦截事件时自动进入 Armed；同一ID未决时只更新阶段与快照，状态不变。
// 若另一个会话因此不再是当前会话，返回其快照
func (c *Coordinator) Arm(stage model.PauseKind, ex traffic.Exchange) (model.PendingItem, *model.PendingItem) {
	c.mu.Lock()
	now := c.clock.Now()

	if p, ok := c.reg.get(ex.ID); ok {
		if p.inFlight && p.Stage != stage {
			p.next = &rearm{stage: stage, exchange: ex, at: now}
			c.log.Info("决策进行中收到下一阶段暂停", "id", ex.ID, "stage", stage)
		} else {
			p.Stage = stage
			p.Exchange = ex
		}
		p.Updates++
		// 新事件总使该暂停成为当前会话，原当前会话需收到通知
		var superseded *model.PendingItem
		if prev, ok := c.reg.active(); ok && prev.ID != p.ID {
			s := prev.snapshot()
			superseded = &s
		}
		c.reg.put(p)
		item := p.snapshot()
		c.mu.Unlock()
		c.log.Debug("更新未决拦截", "id", ex.ID, "stage", stage, "state", item.State)
		if superseded != nil {
			c.notifySuperseded(*superseded)
		}
		return item, superseded
	}

	var superseded *model.PendingItem
	if prev, ok := c.reg.active(); ok {
		s := prev.snapshot()
		superseded = &s
	}
	p := &Pause{
		ID:       ex.ID,
		Stage:    stage,
		State:    model.PauseArmed,
		Exchange: ex,
		ArmedAt:  now,
	}
	c.reg.put(p)
	item := p.snapshot()
	c.mu.Unlock()

	c.log.Info("交换已暂停", "id", ex.ID, "stage", stage, "url", ex.URL)
	if superseded != nil {
		c.notifySuperseded(*superseded)
	}
	return item, superseded
}

// Release 后端已自行完成该交换时移除未决会话；决策进行中的会话由其结果处理
func (c *Coordinator) Release(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.reg.get(id)
	if !ok || p.inFlight {
		return false
	}
	c.reg.resolve(id, model.PauseResumed)
	c.log.Debug("未决拦截已由后端完成", "id", id)
	return true
}

// BeginEdit Armed -> Editing，不访问后端
func (c *Coordinator) BeginEdit(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.reg.resolved[id]; ok {
		return fmt.Errorf("begin edit %s (%s): %w", id, st, ErrTerminal)
	}
	p, ok := c.reg.get(id)
	if !ok {
		return fmt.Errorf("begin edit %s: %w", id, ErrNotFound)
	}
	if p.inFlight {
		return fmt.Errorf("begin edit %s: %w", id, ErrInFlight)
	}
	if p.State != model.PauseArmed {
		return fmt.Errorf("begin edit %s (%s): %w", id, p.State, ErrInvalidState)
	}
	p.State = model.PauseEditing
	return nil
}

// ResumeRequest 以编辑后的请求恢复请求阶段的暂停
func (c *Coordinator) ResumeRequest(ctx context.Context, id string, req traffic.Request) error {
	if err := c.acquire(id, model.PauseRequest, "resume"); err != nil {
		return err
	}
	err := c.ctrl.ContinueRequest(ctx, id, req)
	return c.finish(id, model.PauseResumed, "resume", err)
}

// ResumeResponse 以编辑后的响应恢复响应阶段的暂停
func (c *Coordinator) ResumeResponse(ctx context.Context, id string, res traffic.Response) error {
	if err := c.acquire(id, model.PauseResponse, "resume"); err != nil {
		return err
	}
	err := c.ctrl.ContinueResponse(ctx, id, res)
	return c.finish(id, model.PauseResumed, "resume", err)
}

// Abort 丢弃任一非终态的暂停
func (c *Coordinator) Abort(ctx context.Context, id string) error {
	if err := c.acquire(id, "", "abort"); err != nil {
		return err
	}
	err := c.ctrl.Abort(ctx, id)
	return c.finish(id, model.PauseAborted, "abort", err)
}

// Active 当前可操作的会话（最近到达者）
func (c *Coordinator) Active() (model.PendingItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.reg.active()
	if !ok {
		return model.PendingItem{}, false
	}
	return p.snapshot(), true
}

// Get 查询未决会话
func (c *Coordinator) Get(id string) (model.PendingItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.reg.get(id)
	if !ok {
		return model.PendingItem{}, false
	}
	return p.snapshot(), true
}

// Pending 全部未决会话，按到达顺序，最后一个为当前会话
func (c *Coordinator) Pending() []model.PendingItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.reg.list()
	out := make([]model.PendingItem, 0, len(list))
	for _, p := range list {
		out = append(out, p.snapshot())
	}
	return out
}

// Resolved 查询已结束会话的终态
func (c *Coordinator) Resolved(id string) (model.PauseState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.reg.resolved[id]
	return st, ok
}

// acquire 校验并标记决策进行中；拒绝时不会产生网络请求
func (c *Coordinator) acquire(id string, stage model.PauseKind, op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.reg.resolved[id]; ok {
		return fmt.Errorf("%s %s (%s): %w", op, id, st, ErrTerminal)
	}
	p, ok := c.reg.get(id)
	if !ok {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	if p.inFlight {
		return fmt.Errorf("%s %s: %w", op, id, ErrInFlight)
	}
	if stage != "" && p.Stage != stage {
		return fmt.Errorf("%s %s: paused at %s: %w", op, id, p.Stage, ErrWrongPhase)
	}
	p.inFlight = true
	return nil
}

// finish 仅在后端确认后进入终态，失败时保持原状态
func (c *Coordinator) finish(id string, state model.PauseState, op string, err error) error {
	c.mu.Lock()
	p, ok := c.reg.get(id)
	if ok {
		p.inFlight = false
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("拦截决策失败", "id", id, "op", op, "error", err)
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	evt := model.Event{ExchangeID: id, Type: model.EventResumed}
	if state == model.PauseAborted {
		evt.Type = model.EventAborted
	}
	if ok {
		evt.URL = p.Exchange.URL
		evt.Method = p.Exchange.Method
		evt.Stage = p.Stage
	}

	if ok && p.next != nil && state == model.PauseResumed {
		// 后端已进入下一阶段，同一交换重新进入 Armed
		p.Stage = p.next.stage
		p.Exchange = p.next.exchange
		p.ArmedAt = p.next.at
		p.State = model.PauseArmed
		p.next = nil
	} else {
		c.reg.resolve(id, state)
	}
	c.mu.Unlock()

	c.log.Info("拦截决策完成", "id", id, "state", state)
	c.sendEvent(evt)
	return nil
}

func (c *Coordinator) notifySuperseded(item model.PendingItem) {
	c.sendEvent(model.Event{
		Type:       model.EventSuperseded,
		ExchangeID: item.ID,
		URL:        item.URL,
		Method:     item.Method,
		Stage:      item.Stage,
	})
}

func (c *Coordinator) sendEvent(evt model.Event) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- evt:
	default:
	}
}
