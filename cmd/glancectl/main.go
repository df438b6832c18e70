package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"glancesync/internal/config"
	"glancesync/internal/logger"
	api "glancesync/pkg/api"
	"glancesync/pkg/model"

	"github.com/alecthomas/kong"
)

// CLI 命令行定义
type CLI struct {
	Config   string `help:"Path to glancesync.yaml" type:"path"`
	Backend  string `default:"${config_backend}" help:"Glance backend base URL"`
	PageSize int    `default:"${config_page_size}" help:"Traffic page size"`
	LogLevel string `default:"${config_log_level}" enum:"debug,info,warn,error" help:"Log level"`

	Tail   TailCmd   `cmd:"" help:"Follow live traffic and intercepted exchanges"`
	Page   PageCmd   `cmd:"" help:"Show one page of traffic history"`
	Clear  ClearCmd  `cmd:"" help:"Clear backend traffic history"`
	Status StatusCmd `cmd:"" help:"Show backend status"`
	Curl   CurlCmd   `cmd:"" help:"Print a curl command for an exchange"`
}

// Globals 子命令共享的依赖
type Globals struct {
	Config *config.Config
	Log    logger.Logger
}

// NewService 按全局参数创建服务
func (g *Globals) NewService() (api.Service, error) {
	return api.NewService(g.Config, g.Log)
}

// TailCmd 实时跟踪
type TailCmd struct {
	AutoResume bool   `help:"Resume intercepted exchanges unmodified"`
	AutoAbort  bool   `help:"Abort intercepted exchanges"`
	Filter     string `short:"f" help:"Only show exchanges whose URL or method contains this text"`
	Record     bool   `help:"Record matching exchanges to sqlite"`
}

// Run 执行 tail
func (c *TailCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := g.NewService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	app := NewApp(svc, os.Stdout)
	app.SetAutoDecision(c.AutoResume, c.AutoAbort)
	svc.SetFilter(model.Filter{Text: c.Filter})

	if c.Record {
		if _, err := svc.StartRecording(g.Config.Recording.Filter); err != nil {
			return err
		}
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	app.PrintEntries()
	app.PrintPending()

	events := svc.SubscribeEvents()
	for {
		select {
		case <-ctx.Done():
			if c.Record {
				fmt.Printf("recorded %d exchanges\n", len(svc.StopRecording()))
			}
			return nil
		case evt := <-events:
			if err := app.HandleEvent(ctx, evt); err != nil {
				g.Log.Warn("自动处理拦截失败", "error", err)
			}
			if evt.Type == model.EventStreamClose {
				return nil
			}
		}
	}
}

// PageCmd 查看历史页
type PageCmd struct {
	Page int    `arg:"" optional:"" default:"1" help:"Page number, 1 is newest"`
	Grep string `short:"g" help:"Only show exchanges whose URL or method contains this text"`
}

// Run 执行 page
func (c *PageCmd) Run(g *Globals) error {
	svc, err := g.NewService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.LoadPage(context.Background(), c.Page, g.Config.Traffic.PageSize); err != nil {
		return err
	}
	svc.SetFilter(model.Filter{Text: c.Grep})
	NewApp(svc, os.Stdout).PrintEntries()
	return nil
}

// ClearCmd 清空历史
type ClearCmd struct{}

// Run 执行 clear
func (c *ClearCmd) Run(g *Globals) error {
	svc, err := g.NewService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.Clear(context.Background()); err != nil {
		return err
	}
	fmt.Println("traffic cleared")
	return nil
}

// StatusCmd 后端状态
type StatusCmd struct{}

// Run 执行 status
func (c *StatusCmd) Run(g *Globals) error {
	svc, err := g.NewService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	st, err := svc.Status(context.Background())
	if err != nil {
		return err
	}
	NewApp(svc, os.Stdout).PrintStatus(st, svc.StreamStats())
	return nil
}

// CurlCmd 导出 curl
type CurlCmd struct {
	ID   string `arg:"" help:"Exchange id"`
	Page int    `default:"1" help:"History page containing the exchange"`
}

// Run 执行 curl
func (c *CurlCmd) Run(g *Globals) error {
	svc, err := g.NewService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.LoadPage(context.Background(), c.Page, 0); err != nil {
		return err
	}
	cmd, err := svc.Curl(c.ID)
	if err != nil {
		return err
	}
	fmt.Println(cmd)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.NewConfig()
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("glancectl"),
		kong.Description("Follow, page and intercept traffic of a glance proxy backend"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, Summary: true}),
		kong.Vars{
			"config_backend":   cfg.Backend.URL,
			"config_page_size": strconv.Itoa(cfg.Traffic.PageSize),
			"config_log_level": cfg.Log.Level,
		},
	)

	// 命令行参数只在显式修改默认值时覆盖 --config 指定的文件
	base := *cfg
	if cli.Config != "" {
		fileCfg, err := config.LoadFromFile(cli.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", cli.Config, err)
			os.Exit(1)
		}
		cfg = fileCfg
	}
	if cli.Backend != "" && cli.Backend != base.Backend.URL {
		cfg.Backend.URL = cli.Backend
	}
	if cli.PageSize > 0 && cli.PageSize != base.Traffic.PageSize {
		cfg.Traffic.PageSize = cli.PageSize
	}
	if cli.LogLevel != base.Log.Level {
		cfg.Log.Level = cli.LogLevel
	}

	l, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Writers:    cfg.Log.Writer,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := kctx.Run(&Globals{Config: cfg, Log: l}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
