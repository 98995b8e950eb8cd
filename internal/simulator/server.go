package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServerConfig 模拟器监听参数
type ServerConfig struct {
	Addr           string
	MaxConnections int
	IdleTimeout    time.Duration
}

// Server 通过原始套接字暴露模拟仪器
type Server struct {
	config     ServerConfig
	instrument *Instrument
	log        *logrus.Logger
	limiter    chan struct{}
	wg         sync.WaitGroup

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
}

func NewServer(cfg ServerConfig, instrument *Instrument, log *logrus.Logger) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1
	}
	return &Server{
		config:     cfg,
		instrument: instrument,
		log:        log,
		limiter:    make(chan struct{}, cfg.MaxConnections),
		ready:      make(chan struct{}),
	}
}

// Addr 实际监听地址，Start 之前为 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready 在 Start 完成监听（成功或失败）后关闭，失败时 Addr 为 nil
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Start 监听并接受连接，直到 ctx 取消
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		s.markReady()
		return fmt.Errorf("监听失败: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.markReady()
	s.log.Infof("模拟器启动成功: %s (最大连接: %d)", listener.Addr(), s.config.MaxConnections)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.shutdown()
				return nil
			}
			s.log.Errorf("接受连接错误: %v", err)
			continue
		}

		// 连接数限制
		select {
		case s.limiter <- struct{}{}:
			s.wg.Add(1)
			go s.handleConnection(conn)
		default:
			s.log.Warn("达到最大连接数，拒绝连接")
			conn.Close()
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		<-s.limiter
		s.wg.Done()
	}()

	NewSession(conn, s.instrument, s.log, s.config.IdleTimeout).Serve()
}

func (s *Server) shutdown() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("所有连接已关闭")
	case <-time.After(5 * time.Second):
		s.log.Warn("关闭超时，强制退出")
	}
}
