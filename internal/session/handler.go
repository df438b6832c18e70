package session

import (
	"errors"

	"glancesync/internal/stream"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

// Dispatch 处理一条推送消息，实现 stream.Dispatcher
func (s *Session) Dispatch(msg stream.Message) {
	switch m := msg.(type) {
	case stream.CompletedMessage:
		s.handleCompleted(m.Exchange)
	case stream.InterceptedMessage:
		s.handleIntercepted(m.Stage, m.Exchange)
	default:
		s.log.Warn("未知的推送消息", "kind", msg.Kind().String())
	}
}

// handleCompleted 已有ID原位更新且总数不变；新ID总数加一，仅在实时尾部模式下追加并裁剪最早记录
func (s *Session) handleCompleted(ex traffic.Exchange) {
	s.mu.Lock()
	var total int
	appended := false
	if s.store.Has(ex.ID) {
		s.store.Upsert(ex)
		total = s.pager.Current().Total
	} else {
		total = s.pager.IncrementTotal()
		w := s.pager.Current()
		if w.LiveTail() {
			s.store.Upsert(ex)
			appended = true
			if overflow := s.store.Len() - w.PageSize; overflow > 0 {
				evicted := s.store.EvictOldest(overflow)
				s.log.Debug("实时尾部裁剪", "evicted", len(evicted))
			}
		}
	}
	s.mu.Unlock()

	s.pauses.Release(ex.ID)
	s.observe(ex)
	s.log.Debug("处理已完成交换", "id", ex.ID, "status", ex.Status, "appended", appended, "total", total)
	s.emit(model.Event{
		Type:       model.EventCompleted,
		ExchangeID: ex.ID,
		URL:        ex.URL,
		Method:     ex.Method,
		Total:      total,
	})
}

// handleIntercepted 拦截事件总是交给协调器，与当前页无关
func (s *Session) handleIntercepted(stage model.PauseKind, ex traffic.Exchange) {
	s.mu.Lock()
	if s.store.Has(ex.ID) {
		s.store.Upsert(ex)
	}
	s.mu.Unlock()

	s.pauses.Arm(stage, ex)
	s.observe(ex)
	s.emit(model.Event{
		Type:       model.EventIntercepted,
		ExchangeID: ex.ID,
		URL:        ex.URL,
		Method:     ex.Method,
		Stage:      stage,
	})
}

// Malformed 无法解析的推送消息只记录，Store 不变
func (s *Session) Malformed(err error) {
	s.emit(model.Event{Type: model.EventMalformed, Error: err.Error()})
}

// StreamClosed 推送通道结束
func (s *Session) StreamClosed(err error) {
	evt := model.Event{Type: model.EventStreamClose}
	if err != nil && !errors.Is(err, stream.ErrClosed) {
		evt.Error = err.Error()
		s.log.Warn("推送通道异常结束", "error", err)
	}
	s.emit(evt)
}

func (s *Session) observe(ex traffic.Exchange) {
	if s.recorder != nil {
		s.recorder.Observe(ex)
	}
}

// emit 非阻塞发送
func (s *Session) emit(evt model.Event) {
	select {
	case s.events <- evt:
	default:
	}
}
