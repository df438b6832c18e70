package intercept

import (
	"time"

	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

// Pause 一个被代理暂停的交换
type Pause struct {
	ID       string
	Stage    model.PauseKind
	State    model.PauseState
	Exchange traffic.Exchange
	ArmedAt  time.Time
	Updates  int

	inFlight bool
	next     *rearm
}

// rearm 决策进行中时后端已进入下一阶段的暂停
type rearm struct {
	stage    model.PauseKind
	exchange traffic.Exchange
	at       time.Time
}

func (p *Pause) snapshot() model.PendingItem {
	return model.PendingItem{
		ID:       p.ID,
		Stage:    p.Stage,
		State:    p.State,
		URL:      p.Exchange.URL,
		Method:   p.Exchange.Method,
		Exchange: p.Exchange.Clone(),
		ArmedAt:  p.ArmedAt,
		Updates:  p.Updates,
	}
}

// registry 待处理拦截会话表，按到达顺序排列，最后一个为当前可操作会话；调用方负责加锁
type registry struct {
	pauses   map[string]*Pause
	order    []string
	resolved map[string]model.PauseState
}

func newRegistry() *registry {
	return &registry{
		pauses:   make(map[string]*Pause),
		resolved: make(map[string]model.PauseState),
	}
}

// put 注册或置顶
func (r *registry) put(p *Pause) {
	if _, ok := r.pauses[p.ID]; ok {
		r.unlink(p.ID)
	}
	r.pauses[p.ID] = p
	r.order = append(r.order, p.ID)
	delete(r.resolved, p.ID)
}

func (r *registry) get(id string) (*Pause, bool) {
	p, ok := r.pauses[id]
	return p, ok
}

// resolve 移除并记录终态
func (r *registry) resolve(id string, state model.PauseState) {
	if _, ok := r.pauses[id]; ok {
		r.unlink(id)
		delete(r.pauses, id)
	}
	r.resolved[id] = state
}

func (r *registry) active() (*Pause, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	return r.pauses[r.order[len(r.order)-1]], true
}

func (r *registry) list() []*Pause {
	out := make([]*Pause, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.pauses[id])
	}
	return out
}

func (r *registry) unlink(id string) {
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			return
		}
	}
}
