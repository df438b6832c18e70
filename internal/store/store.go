package store

import (
	"sync"

	"glancesync/pkg/traffic"
)

// Store 按到达顺序保存、按ID去重的交换集合，界面可见内容的唯一持有者
type Store struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]traffic.Exchange
	version uint64

	view        []traffic.Exchange
	viewVersion uint64

	subs   map[int]chan uint64
	nextID int
}

// New 创建空存储
func New() *Store {
	return &Store{
		byID: make(map[string]traffic.Exchange),
		subs: make(map[int]chan uint64),
	}
}

// Upsert 新ID追加到末尾，已有ID原位替换，返回是否为新增
func (s *Store) Upsert(e traffic.Exchange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.byID[e.ID]
	if !exists {
		s.order = append(s.order, e.ID)
	}
	s.byID[e.ID] = e.Clone()
	s.bump()
	return !exists
}

// EvictOldest 移除最早到达的 n 条记录并返回
func (s *Store) EvictOldest(n int) []traffic.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || len(s.order) == 0 {
		return nil
	}
	if n > len(s.order) {
		n = len(s.order)
	}
	evicted := make([]traffic.Exchange, 0, n)
	for _, id := range s.order[:n] {
		evicted = append(evicted, s.byID[id])
		delete(s.byID, id)
	}
	s.order = append([]string(nil), s.order[n:]...)
	s.bump()
	return evicted
}

// Replace 整体替换内容，输入中重复的ID保留首次位置、以最后一次内容为准
func (s *Store) Replace(entries []traffic.Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = make([]string, 0, len(entries))
	s.byID = make(map[string]traffic.Exchange, len(entries))
	for _, e := range entries {
		if _, ok := s.byID[e.ID]; !ok {
			s.order = append(s.order, e.ID)
		}
		s.byID[e.ID] = e.Clone()
	}
	s.bump()
}

// Clear 清空
func (s *Store) Clear() {
	s.Replace(nil)
}

// All 按到达顺序返回深拷贝快照，同一版本内复用缓存的顺序
func (s *Store) All() []traffic.Exchange {
	s.mu.RLock()
	if s.view != nil && s.viewVersion == s.version {
		out := cloneAll(s.view)
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil || s.viewVersion != s.version {
		view := make([]traffic.Exchange, 0, len(s.order))
		for _, id := range s.order {
			view = append(view, s.byID[id])
		}
		s.view = view
		s.viewVersion = s.version
	}
	return cloneAll(s.view)
}

func cloneAll(entries []traffic.Exchange) []traffic.Exchange {
	out := make([]traffic.Exchange, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// Get 按ID查询，返回副本
func (s *Store) Get(id string) (traffic.Exchange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return traffic.Exchange{}, false
	}
	return e.Clone(), true
}

// Has 是否包含该ID
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Len 当前记录数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Version 单调递增的变更版本号
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe 订阅版本变化，通道容量为 1，只保留最新版本
func (s *Store) Subscribe() (<-chan uint64, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan uint64, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// bump 调用方需持有写锁
func (s *Store) bump() {
	s.version++
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.version:
		default:
		}
	}
}
