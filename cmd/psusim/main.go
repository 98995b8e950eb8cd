package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"psu-controller/internal/simulator"
	"psu-controller/pkg/protocol"
)

func main() {
	addr := flag.String("addr", fmt.Sprintf("127.0.0.1:%d", protocol.DefaultPort), "监听地址")
	load := flag.Float64("load", 10, "每通道电阻负载 (Ω)，<=0 表示开路")
	maxConn := flag.Int("max-conn", 4, "最大连接数")
	idle := flag.Duration("idle", 0, "空闲超时，0 表示不超时")
	serial := flag.String("serial", "SIM0001", "序列号")
	model := flag.String("model", protocol.Model, "型号")
	level := flag.String("log-level", "info", "日志级别")
	flag.Parse()

	log := logrus.New()
	if lv, err := logrus.ParseLevel(*level); err == nil {
		log.SetLevel(lv)
	}
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	id := simulator.DefaultIdentity()
	id.Serial = *serial
	id.Model = *model
	instrument := simulator.NewInstrument(id, float32(*load))

	srv := simulator.NewServer(simulator.ServerConfig{
		Addr:           *addr,
		MaxConnections: *maxConn,
		IdleTimeout:    *idle,
	}, instrument, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := srv.Start(ctx); err != nil {
		log.Errorf("模拟器错误: %v", err)
		os.Exit(1)
	}
	log.Infof("模拟器已关闭，运行 %s", time.Since(start).Round(time.Second))
}
