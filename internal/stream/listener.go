package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"glancesync/internal/logger"
	"glancesync/pkg/model"

	"github.com/gorilla/websocket"
)

// ErrClosed 推送通道已关闭
var ErrClosed = errors.New("stream closed")

// Dispatcher 接收解码后的推送消息，每条消息处理完成后才读取下一条
type Dispatcher interface {
	Dispatch(msg Message)
	Malformed(err error)
	StreamClosed(err error)
}

// Listener 推送通道监听器，进程内唯一读取者
type Listener struct {
	url      string
	header   http.Header
	dialer   *websocket.Dialer
	dispatch Dispatcher
	log      logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    atomic.Bool

	received    atomic.Int64
	completed   atomic.Int64
	intercepted atomic.Int64
	malformed   atomic.Int64
}

// Config 监听器配置
type Config struct {
	URL         string
	Header      http.Header
	DialTimeout time.Duration
	Dispatcher  Dispatcher
	Logger      logger.Logger
}

// New 创建监听器
func New(cfg Config) *Listener {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Listener{
		url:      cfg.URL,
		header:   cfg.Header,
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout, Proxy: http.ProxyFromEnvironment},
		dispatch: cfg.Dispatcher,
		log:      l.With("component", "stream"),
	}
}

// Dial 建立推送连接，只允许成功一次
func (l *Listener) Dial(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return errors.New("stream already connected")
	}

	conn, resp, err := l.dialer.DialContext(ctx, l.url, l.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: HTTP %d: %w", l.url, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", l.url, err)
	}
	l.conn = conn
	l.log.Info("推送通道已连接", "url", l.url)
	return nil
}

// Run 读取循环，直到连接断开或 ctx 取消；返回后监听器不再处理任何消息
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.New("stream not connected")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-done:
		}
	}()

	var runErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || l.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.log.Info("推送通道已关闭")
			} else {
				runErr = fmt.Errorf("read stream: %w", err)
				l.log.Warn("推送通道断开", "error", err)
			}
			break
		}
		l.Handle(data)
	}

	_ = l.Close()
	if l.dispatch != nil {
		l.dispatch.StreamClosed(runErr)
	}
	return runErr
}

// Handle 解码并分发一帧消息，解码失败仅记录并丢弃
func (l *Listener) Handle(data []byte) {
	if l.closed.Load() {
		return
	}
	l.received.Add(1)

	msg, err := Decode(data)
	if err != nil {
		l.malformed.Add(1)
		l.log.Warn("丢弃无法解析的推送消息", "error", err, "size", len(data))
		if l.dispatch != nil {
			l.dispatch.Malformed(err)
		}
		return
	}

	switch msg.Kind() {
	case KindCompleted:
		l.completed.Add(1)
	case KindIntercepted:
		l.intercepted.Add(1)
	}
	l.log.Debug("收到推送消息", "kind", msg.Kind().String(), "id", msg.ExchangeID())
	if l.dispatch != nil {
		l.dispatch.Dispatch(msg)
	}
}

// Close 关闭连接，可重复调用
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn == nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	})
	return err
}

// Closed 是否已进入失效状态
func (l *Listener) Closed() bool {
	return l.closed.Load()
}

// Stats 消息统计
func (l *Listener) Stats() model.StreamStats {
	return model.StreamStats{
		Received:    l.received.Load(),
		Completed:   l.completed.Load(),
		Intercepted: l.intercepted.Load(),
		Malformed:   l.malformed.Load(),
	}
}
