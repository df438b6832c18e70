package recording

import (
	"context"
	"strings"
	"sync"
	"time"

	"glancesync/internal/logger"
	"glancesync/pkg/traffic"

	"github.com/google/uuid"
)

// Repository 录制持久化
type Repository interface {
	Append(ctx context.Context, recordingID string, seq int, ex traffic.Exchange) error
	List(ctx context.Context, recordingID string) ([]traffic.Exchange, error)
}

// Recorder 按到达顺序录制推送中的交换，URL 包含过滤词（不区分大小写）时才录制
type Recorder struct {
	mu      sync.Mutex
	repo    Repository
	active  bool
	id      string
	filter  string
	entries []traffic.Exchange
	timeout time.Duration
	log     logger.Logger
}

// New 创建录制器，repo 为空时只在内存中保存
func New(repo Repository, l logger.Logger) *Recorder {
	if l == nil {
		l = logger.NewNop()
	}
	return &Recorder{
		repo:    repo,
		timeout: 5 * time.Second,
		log:     l.With("component", "recording"),
	}
}

// Attach 设置持久化仓库
func (r *Recorder) Attach(repo Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo = repo
}

// Start 开始新的录制，丢弃上一次未保存的内存记录，返回录制ID
func (r *Recorder) Start(filter string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = true
	r.id = uuid.NewString()
	r.filter = strings.ToLower(strings.TrimSpace(filter))
	r.entries = nil
	r.log.Info("开始录制", "recordingId", r.id, "filter", r.filter)
	return r.id
}

// SetFilter 修改过滤词，只影响之后到达的交换
func (r *Recorder) SetFilter(filter string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = strings.ToLower(strings.TrimSpace(filter))
}

// Stop 结束录制并返回录制结果
func (r *Recorder) Stop() []traffic.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return nil
	}
	r.active = false
	out := r.entries
	r.entries = nil
	r.log.Info("结束录制", "recordingId", r.id, "entries", len(out))
	return out
}

// Observe 录制一条交换
func (r *Recorder) Observe(ex traffic.Exchange) {
	r.mu.Lock()
	if !r.active || (r.filter != "" && !strings.Contains(strings.ToLower(ex.URL), r.filter)) {
		r.mu.Unlock()
		return
	}
	r.entries = append(r.entries, ex.Clone())
	id, seq, repo := r.id, len(r.entries), r.repo
	r.mu.Unlock()

	if repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := repo.Append(ctx, id, seq, ex); err != nil {
		r.log.Warn("录制持久化失败", "recordingId", id, "id", ex.ID, "error", err)
	}
}

// Entries 当前录制内容
func (r *Recorder) Entries() []traffic.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]traffic.Exchange, len(r.entries))
	copy(out, r.entries)
	return out
}

// Active 是否正在录制
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ID 最近一次录制的ID
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Load 从持久化中读取某次录制
func (r *Recorder) Load(ctx context.Context, recordingID string) ([]traffic.Exchange, error) {
	r.mu.Lock()
	repo := r.repo
	r.mu.Unlock()
	if repo == nil {
		return nil, nil
	}
	return repo.List(ctx, recordingID)
}
