package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"glancesync/pkg/traffic"

	"gorm.io/gorm"
)

// ExchangeRecord 一条录制的交换，完整内容以 JSON 保存
type ExchangeRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RecordingID string `gorm:"size:36;index:idx_recording_seq,priority:1"`
	Seq         int    `gorm:"index:idx_recording_seq,priority:2"`
	ExchangeID  string `gorm:"size:128;index"`
	Method      string `gorm:"size:16"`
	URL         string
	Status      int
	Payload     string
	CreatedAt   time.Time
}

// RecordingRepo 录制记录读写
type RecordingRepo struct {
	db *gorm.DB
}

// Append 追加一条记录
func (r *RecordingRepo) Append(ctx context.Context, recordingID string, seq int, ex traffic.Exchange) error {
	payload, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("encode exchange %s: %w", ex.ID, err)
	}
	rec := ExchangeRecord{
		RecordingID: recordingID,
		Seq:         seq,
		ExchangeID:  ex.ID,
		Method:      ex.Method,
		URL:         ex.URL,
		Status:      ex.Status,
		Payload:     string(payload),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append recording %s: %w", recordingID, err)
	}
	return nil
}

// List 按录制顺序返回某次录制的全部交换
func (r *RecordingRepo) List(ctx context.Context, recordingID string) ([]traffic.Exchange, error) {
	var rows []ExchangeRecord
	err := r.db.WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list recording %s: %w", recordingID, err)
	}

	out := make([]traffic.Exchange, 0, len(rows))
	for _, row := range rows {
		var ex traffic.Exchange
		if err := json.Unmarshal([]byte(row.Payload), &ex); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", row.ID, err)
		}
		out = append(out, ex)
	}
	return out, nil
}

// Count 某次录制的条数
func (r *RecordingRepo) Count(ctx context.Context, recordingID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ExchangeRecord{}).Where("recording_id = ?", recordingID).Count(&n).Error
	return n, err
}

// Delete 删除某次录制
func (r *RecordingRepo) Delete(ctx context.Context, recordingID string) error {
	return r.db.WithContext(ctx).Where("recording_id = ?", recordingID).Delete(&ExchangeRecord{}).Error
}
