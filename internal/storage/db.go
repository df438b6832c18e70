package storage

import (
	"fmt"

	"glancesync/internal/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Options 数据库配置
type Options struct {
	Dsn    string
	Prefix string
	// Fresh 打开时清空已有记录，录制数据只在一次会话内有效
	Fresh bool
}

// DB 本地录制数据库
type DB struct {
	gorm *gorm.DB
	log  logger.Logger
}

// Open 打开 sqlite 数据库并迁移表结构
func Open(opts Options, l logger.Logger) (*DB, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.Dsn == "" {
		opts.Dsn = "file::memory:"
	}

	db, err := gorm.Open(sqlite.Open(opts.Dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: opts.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", opts.Dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", opts.Dsn, err)
	}
	// sqlite 单写者
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&ExchangeRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	out := &DB{gorm: db, log: l.With("component", "storage")}
	if opts.Fresh {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ExchangeRecord{}).Error; err != nil {
			return nil, fmt.Errorf("truncate recordings: %w", err)
		}
	}
	out.log.Info("录制数据库已打开", "dsn", opts.Dsn)
	return out, nil
}

// Recordings 录制记录仓库
func (d *DB) Recordings() *RecordingRepo {
	return &RecordingRepo{db: d.gorm}
}

// Close 关闭底层连接
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
