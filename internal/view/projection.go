package view

import (
	"slices"
	"sync"

	"glancesync/internal/store"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"

	"github.com/samber/lo"
)

// Apply 无副作用地过滤，结果为新到旧
func Apply(entries []traffic.Exchange, f model.Filter) []traffic.Exchange {
	return lo.Reverse(lo.Filter(entries, func(ex traffic.Exchange, _ int) bool {
		return Match(f, ex)
	}))
}

// Projection 以 Store 版本与过滤条件为键缓存 Apply 的结果
type Projection struct {
	mu     sync.Mutex
	store  *store.Store
	filter model.Filter

	cached  []traffic.Exchange
	version uint64
	valid   bool
}

// NewProjection 创建视图投影
func NewProjection(s *store.Store) *Projection {
	return &Projection{store: s}
}

// SetFilter 修改过滤条件
func (p *Projection) SetFilter(f model.Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.Methods = slices.Clone(f.Methods)
	p.filter = f
	p.valid = false
}

// Filter 当前过滤条件
func (p *Projection) Filter() model.Filter {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.filter
	f.Methods = slices.Clone(f.Methods)
	return f
}

// Entries 当前可见交换的深拷贝，Store 与过滤条件均未变化时复用上次结果
func (p *Projection) Entries() []traffic.Exchange {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh()
	return lo.Map(p.cached, func(e traffic.Exchange, _ int) traffic.Exchange {
		return e.Clone()
	})
}

// Count 可见条数
func (p *Projection) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh()
	return len(p.cached)
}

// refresh 调用方需持有锁
func (p *Projection) refresh() {
	v := p.store.Version()
	if p.valid && v == p.version {
		return
	}
	p.cached = Apply(p.store.All(), p.filter)
	p.version = v
	p.valid = true
}
