package api

import (
	"context"

	"glancesync/internal/config"
	"glancesync/internal/logger"
	"glancesync/internal/service"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

// Service 服务接口
type Service interface {
	// Start 连接后端推送并加载第一页
	Start(ctx context.Context) error

	// Close 停止服务
	Close() error

	// LoadPage 加载指定页，pageSize 小于 1 时使用默认值
	LoadPage(ctx context.Context, page, pageSize int) error

	// NextPage 加载更早的一页
	NextPage(ctx context.Context) error

	// PrevPage 加载更新的一页
	PrevPage(ctx context.Context) error

	// Clear 清空流量历史
	Clear(ctx context.Context) error

	// Window 当前分页窗口
	Window() model.PageWindow

	// Entries 过滤后的可见交换，新到旧
	Entries() []traffic.Exchange

	// SetFilter 设置列表过滤条件
	SetFilter(f model.Filter)

	// Exchange 按ID查找交换
	Exchange(id string) (traffic.Exchange, error)

	// Curl 导出 curl 命令
	Curl(id string) (string, error)

	// Pending 未决拦截
	Pending() []model.PendingItem

	// ActiveIntercept 当前可操作的拦截
	ActiveIntercept() (model.PendingItem, bool)

	// BeginEdit 进入编辑
	BeginEdit(id string) error

	// DraftRequest 生成请求草稿
	DraftRequest(id string) (traffic.Request, error)

	// DraftResponse 生成响应草稿
	DraftResponse(id string) (traffic.Response, error)

	// ResumeRequest 恢复请求阶段的暂停
	ResumeRequest(ctx context.Context, id string, req traffic.Request) error

	// ResumeResponse 恢复响应阶段的暂停
	ResumeResponse(ctx context.Context, id string, res traffic.Response) error

	// Abort 丢弃暂停的交换
	Abort(ctx context.Context, id string) error

	// Execute 发起新请求
	Execute(ctx context.Context, req traffic.Request) (*traffic.Exchange, error)

	// StartRecording 开始录制
	StartRecording(filter string) (string, error)

	// StopRecording 结束录制
	StopRecording() []traffic.Exchange

	// Recording 录制状态
	Recording() (bool, []traffic.Exchange)

	// LoadRecording 读取已保存的录制
	LoadRecording(ctx context.Context, id string) ([]traffic.Exchange, error)

	// Status 后端状态
	Status(ctx context.Context) (model.Status, error)

	// StreamStats 推送统计
	StreamStats() model.StreamStats

	// SubscribeEvents 订阅事件
	SubscribeEvents() <-chan model.Event
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	svc, err := service.New(cfg, l)
	if err != nil {
		return nil, err
	}
	return svc, nil
}
