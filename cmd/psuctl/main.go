package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"psu-controller/internal/app"
	"psu-controller/internal/config"
	"psu-controller/internal/console"
	"psu-controller/internal/driver"
	"psu-controller/internal/monitor"
	"psu-controller/internal/telemetry"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

// exitReporter 打印致命错误，退出码由 run 返回，保证延迟清理先执行
type exitReporter struct {
	log *logrus.Logger
}

func (r exitReporter) Report(err error) {
	r.log.Errorf("致命错误: %v", err)
	fmt.Fprintln(os.Stderr, err)
}

func main() {
	os.Exit(run())
}

func run() int {
	// 命令行参数
	configFile := flag.String("config", "configs/config.yaml", "配置文件路径")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	if *showVersion {
		fmt.Printf("PSU Controller v%s (Build: %s)\n", Version, BuildTime)
		return 0
	}

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		cfg = config.GetDefaultConfig()
		fmt.Println("使用默认配置")
	}

	log := setupLogger(cfg.Log)
	reporter := exitReporter{log: log}
	log.Infof("PSU Controller v%s 启动中...", Version)
	log.Infof("配置文件: %s", *configFile)

	bounds, err := cfg.BoundsOverrides()
	if err != nil {
		reporter.Report(err)
		return 1
	}

	// 发现仪器
	psu, err := driver.Open(driver.Options{
		Address:      cfg.Instrument.Address,
		Timeout:      cfg.Instrument.Timeout,
		Manufacturer: cfg.Instrument.Manufacturer,
		Model:        cfg.Instrument.Model,
	}, log)
	if err != nil {
		reporter.Report(err)
		return 1
	}
	defer psu.Close()

	opts := []app.Option{app.WithReporter(reporter), app.WithBounds(bounds)}

	if cfg.Monitor.Enabled {
		mon := monitor.NewMonitor(log)
		mon.StartMetricsServer(cfg.Monitor.MetricsPort)
		defer mon.Close()
		opts = append(opts, app.WithMonitor(mon))
	}

	if cfg.Redis.Enabled {
		pub, err := telemetry.NewPublisher(cfg.Redis, log)
		if err != nil {
			log.Warnf("遥测不可用: %v", err)
		} else {
			defer pub.Close()
			opts = append(opts, app.WithSink(pub, psu.Identity().Serial))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go console.ReadLines(ctx, os.Stdin, lines)
	fmt.Println(console.Usage)

	a := app.New(cfg.Sync, psu, log, opts...)
	if err := a.Run(ctx, lines); err != nil {
		return 1
	}
	log.Info("已退出")
	return 0
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("打开日志文件失败: %v, 使用标准输出", err)
		}
	} else {
		// 标准输出留给控制台
		log.SetOutput(os.Stderr)
	}

	return log
}
