package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"glancesync/pkg/model"
	"glancesync/pkg/traffic"

	"github.com/tidwall/gjson"
)

// ErrMalformed 推送消息无法解码或类型未知
var ErrMalformed = errors.New("malformed stream message")

// MessageKind 推送消息种类
type MessageKind int

const (
	KindCompleted MessageKind = iota + 1
	KindIntercepted
)

func (k MessageKind) String() string {
	switch k {
	case KindCompleted:
		return "completed"
	case KindIntercepted:
		return "intercepted"
	default:
		return "unknown"
	}
}

// Message 推送消息的标签联合，只有 CompletedMessage 与 InterceptedMessage 两种实现
type Message interface {
	Kind() MessageKind
	ExchangeID() string
	isMessage()
}

// CompletedMessage 已完成的交换
type CompletedMessage struct {
	Exchange traffic.Exchange
}

func (CompletedMessage) Kind() MessageKind     { return KindCompleted }
func (m CompletedMessage) ExchangeID() string { return m.Exchange.ID }
func (CompletedMessage) isMessage()            {}

// InterceptedMessage 被代理暂停的交换
type InterceptedMessage struct {
	Stage    model.PauseKind
	Exchange traffic.Exchange
}

func (InterceptedMessage) Kind() MessageKind     { return KindIntercepted }
func (m InterceptedMessage) ExchangeID() string { return m.Exchange.ID }
func (InterceptedMessage) isMessage()            {}

// Decode 解码一帧推送消息：无 type 字段为已完成交换，type 为 intercepted 为拦截事件
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}

	typ := root.Get("type")
	if !typ.Exists() {
		ex, err := decodeExchange(data)
		if err != nil {
			return nil, err
		}
		return CompletedMessage{Exchange: ex}, nil
	}

	switch typ.String() {
	case "intercepted":
		stage := model.PauseKind(root.Get("intercept_type").String())
		if !stage.Valid() {
			return nil, fmt.Errorf("%w: unknown intercept_type %q", ErrMalformed, stage)
		}
		entry := root.Get("entry")
		if !entry.IsObject() {
			return nil, fmt.Errorf("%w: intercepted message without entry", ErrMalformed)
		}
		ex, err := decodeExchange([]byte(entry.Raw))
		if err != nil && root.Get("id").String() != "" && errors.Is(err, errMissingID) {
			ex.ID = root.Get("id").String()
			err = nil
		}
		if err != nil {
			return nil, err
		}
		return InterceptedMessage{Stage: stage, Exchange: ex}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, typ.String())
	}
}

var errMissingID = fmt.Errorf("%w: exchange without id", ErrMalformed)

func decodeExchange(raw []byte) (traffic.Exchange, error) {
	var ex traffic.Exchange
	if err := json.Unmarshal(raw, &ex); err != nil {
		return traffic.Exchange{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ex.ID == "" {
		return ex, errMissingID
	}
	return ex, nil
}
