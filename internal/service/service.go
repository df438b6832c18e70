package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"glancesync/internal/backend"
	"glancesync/internal/config"
	"glancesync/internal/ctxkeys"
	"glancesync/internal/intercept"
	"glancesync/internal/logger"
	"glancesync/internal/recording"
	"glancesync/internal/session"
	"glancesync/internal/status"
	"glancesync/internal/storage"
	"glancesync/internal/stream"
	"glancesync/internal/view"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrClosed         = errors.New("service closed")
	ErrUnknownID      = errors.New("exchange not found")
	// ErrFirstPage 推送通道已建立但第一页加载失败，服务保持运行，应重试 LoadPage 而不是 Start
	ErrFirstPage = errors.New("stream connected but first page load failed")
)

// Service 组合后端客户端、同步会话、推送监听、录制与状态轮询
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	client   *backend.Client
	session  *session.Session
	view     *view.Projection
	recorder *recording.Recorder
	poller   *status.Poller
	listener *stream.Listener

	mu      sync.Mutex
	db      *storage.DB
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// New 创建服务，不访问网络
func New(cfg *config.Config, l logger.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if l == nil {
		l = logger.NewNop()
	}

	client := backend.New(backend.Config{
		BaseURL:    cfg.Backend.URL,
		StreamPath: cfg.Backend.StreamPath,
		Timeout:    cfg.Backend.Timeout,
		Logger:     l.With("component", "backend"),
	})
	recorder := recording.New(nil, l)
	sess := session.New(session.Config{
		Backend:  client,
		PageSize: cfg.Traffic.PageSize,
		Recorder: recorder,
		Logger:   l,
	})

	return &Service{
		cfg:      cfg,
		log:      l.With("component", "service"),
		client:   client,
		session:  sess,
		view:     view.NewProjection(sess.Store()),
		recorder: recorder,
		poller: status.New(status.Config{
			Fetcher:  client,
			Interval: cfg.Status.PollInterval,
			Logger:   l,
		}),
	}, nil
}

// Start 连接推送通道并加载第一页；推送先于分页建立，分页结果以后端为准整体覆盖。
// 连接失败时可再次 Start；第一页失败时返回 ErrFirstPage，服务已在运行
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	ctx, traceID := ctxkeys.WithTraceID(ctx)
	l := logger.FromContext(ctx, s.log)

	if bc, err := s.client.Config(ctx); err != nil {
		l.Warn("获取后端配置失败，使用本地页大小", "error", err)
	} else if bc.DefaultPageSize > 0 {
		s.session.SetPageSize(bc.DefaultPageSize)
	}

	if s.cfg.Recording.Enabled {
		if _, err := s.StartRecording(s.cfg.Recording.Filter); err != nil {
			l.Warn("启动录制失败", "error", err)
		}
	}

	streamURL, err := s.client.StreamURL()
	if err != nil {
		s.abortStart()
		return err
	}
	listener := stream.New(stream.Config{
		URL:         streamURL,
		DialTimeout: s.cfg.Backend.Timeout,
		Dispatcher:  s.session,
		Logger:      s.log,
	})
	if err := listener.Dial(ctx); err != nil {
		s.abortStart()
		return fmt.Errorf("connect stream: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := listener.Run(runCtx); err != nil {
			s.log.Warn("推送通道结束", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		_ = s.poller.Run(runCtx)
	}()

	if err := s.session.LoadPage(ctx, 1, 0); err != nil {
		l.Warn("加载第一页失败", "error", err)
		return fmt.Errorf("%w: %w", ErrFirstPage, err)
	}
	l.Info("服务已启动", "traceId", traceID, "backend", s.cfg.Backend.URL, "window", s.session.Window())
	return nil
}

// abortStart 连接失败后允许重新 Start
func (s *Service) abortStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.started = false
}

// Close 停止后台任务并释放资源，可重复调用
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	listener := s.listener
	db := s.db
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if listener != nil {
		_ = listener.Close()
	}
	s.wg.Wait()
	if db != nil {
		return db.Close()
	}
	return nil
}

// LoadPage 加载指定页
func (s *Service) LoadPage(ctx context.Context, page, pageSize int) error {
	return s.session.LoadPage(ctx, page, pageSize)
}

// NextPage 加载更早的一页
func (s *Service) NextPage(ctx context.Context) error {
	return s.session.NextPage(ctx)
}

// PrevPage 加载更新的一页
func (s *Service) PrevPage(ctx context.Context) error {
	return s.session.PrevPage(ctx)
}

// Clear 清空流量历史
func (s *Service) Clear(ctx context.Context) error {
	return s.session.Clear(ctx)
}

// Window 当前分页窗口
func (s *Service) Window() model.PageWindow {
	return s.session.Window()
}

// Entries 过滤后的可见交换，新到旧
func (s *Service) Entries() []traffic.Exchange {
	return s.view.Entries()
}

// SetFilter 修改列表过滤条件
func (s *Service) SetFilter(f model.Filter) {
	s.view.SetFilter(f)
}

// Exchange 按ID查找交换，未在 Store 中时查找未决拦截
func (s *Service) Exchange(id string) (traffic.Exchange, error) {
	if ex, ok := s.session.Exchange(id); ok {
		return ex, nil
	}
	if item, ok := s.session.Intercepts().Get(id); ok {
		return item.Exchange, nil
	}
	return traffic.Exchange{}, fmt.Errorf("%s: %w", id, ErrUnknownID)
}

// Curl 导出 curl 命令
func (s *Service) Curl(id string) (string, error) {
	ex, err := s.Exchange(id)
	if err != nil {
		return "", err
	}
	return traffic.Curl(ex), nil
}

// Pending 未决拦截，按到达顺序
func (s *Service) Pending() []model.PendingItem {
	return s.session.Intercepts().Pending()
}

// ActiveIntercept 当前可操作的拦截
func (s *Service) ActiveIntercept() (model.PendingItem, bool) {
	return s.session.Intercepts().Active()
}

// BeginEdit 进入编辑
func (s *Service) BeginEdit(id string) error {
	return s.session.Intercepts().BeginEdit(id)
}

// DraftRequest 生成请求草稿
func (s *Service) DraftRequest(id string) (traffic.Request, error) {
	item, ok := s.session.Intercepts().Get(id)
	if !ok {
		return traffic.Request{}, fmt.Errorf("draft %s: %w", id, intercept.ErrNotFound)
	}
	return intercept.DraftRequest(item), nil
}

// DraftResponse 生成响应草稿
func (s *Service) DraftResponse(id string) (traffic.Response, error) {
	item, ok := s.session.Intercepts().Get(id)
	if !ok {
		return traffic.Response{}, fmt.Errorf("draft %s: %w", id, intercept.ErrNotFound)
	}
	return intercept.DraftResponse(item), nil
}

// ResumeRequest 恢复请求阶段的暂停
func (s *Service) ResumeRequest(ctx context.Context, id string, req traffic.Request) error {
	return s.session.Intercepts().ResumeRequest(ctx, id, req)
}

// ResumeResponse 恢复响应阶段的暂停
func (s *Service) ResumeResponse(ctx context.Context, id string, res traffic.Response) error {
	return s.session.Intercepts().ResumeResponse(ctx, id, res)
}

// Abort 丢弃暂停的交换
func (s *Service) Abort(ctx context.Context, id string) error {
	return s.session.Intercepts().Abort(ctx, id)
}

// Execute 通过代理发起新请求，结果同时经推送通道到达
func (s *Service) Execute(ctx context.Context, req traffic.Request) (*traffic.Exchange, error) {
	return s.client.Execute(ctx, req)
}

// StartRecording 开始录制，首次使用时打开录制数据库
func (s *Service) StartRecording(filter string) (string, error) {
	s.mu.Lock()
	if s.db == nil {
		db, err := storage.Open(storage.Options{
			Dsn:    s.cfg.Sqlite.Dsn,
			Prefix: s.cfg.Sqlite.Prefix,
			Fresh:  true,
		}, s.log)
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		s.db = db
		s.recorder.Attach(db.Recordings())
	}
	s.mu.Unlock()
	return s.recorder.Start(filter), nil
}

// StopRecording 结束录制并返回结果
func (s *Service) StopRecording() []traffic.Exchange {
	return s.recorder.Stop()
}

// Recording 录制状态与当前内容
func (s *Service) Recording() (bool, []traffic.Exchange) {
	return s.recorder.Active(), s.recorder.Entries()
}

// LoadRecording 从数据库读取某次录制
func (s *Service) LoadRecording(ctx context.Context, id string) ([]traffic.Exchange, error) {
	return s.recorder.Load(ctx, id)
}

// Status 最近一次后端状态；服务未启动时直接查询
func (s *Service) Status(ctx context.Context) (model.Status, error) {
	if st, _, ok := s.poller.Last(); ok {
		return st, nil
	}
	st, err := s.poller.Poll(ctx)
	if err != nil {
		return model.Status{}, err
	}
	return *st, nil
}

// StreamStats 推送通道统计
func (s *Service) StreamStats() model.StreamStats {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return model.StreamStats{}
	}
	return l.Stats()
}

// SubscribeEvents 会话事件，只应有一个消费者
func (s *Service) SubscribeEvents() <-chan model.Event {
	return s.session.Events()
}
