package simulator

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"psu-controller/internal/scpi"
)

// Session 单个客户端连接
type Session struct {
	conn        net.Conn
	peer        string
	instrument  *Instrument
	log         *logrus.Logger
	idleTimeout time.Duration
}

func NewSession(conn net.Conn, instrument *Instrument, log *logrus.Logger, idleTimeout time.Duration) *Session {
	return &Session{
		conn:        conn,
		peer:        conn.RemoteAddr().String(),
		instrument:  instrument,
		log:         log,
		idleTimeout: idleTimeout,
	}
}

// Serve 逐行处理命令，直到连接关闭或空闲超时
func (s *Session) Serve() {
	defer func() {
		s.conn.Close()
		s.log.Infof("连接关闭: %s", s.peer)
	}()
	s.log.Infof("新连接: %s", s.peer)

	scanner := bufio.NewScanner(s.conn)
	for {
		if s.idleTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					s.log.Debugf("空闲超时: %s", s.peer)
				} else {
					s.log.Debugf("连接断开: %s, 错误: %v", s.peer, err)
				}
			}
			return
		}

		if err := s.handleLine(scanner.Text()); err != nil {
			s.log.Debugf("发送响应失败 [%s]: %v", s.peer, err)
			return
		}
	}
}

func (s *Session) handleLine(line string) error {
	cmd, err := scpi.ParseCommand(line)
	if errors.Is(err, scpi.ErrEmpty) {
		return nil
	}
	if err != nil {
		s.instrument.SyntaxError()
		s.log.Warnf("解析失败 [%s]: %v", s.peer, err)
		return nil
	}

	resp, ok := s.instrument.Execute(cmd)
	s.log.Debugf("[%s] %s", s.peer, cmd)
	if !ok {
		return nil
	}
	return s.respond(resp)
}

func (s *Session) respond(resp string) error {
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := s.conn.Write([]byte(resp + scpi.Terminator)); err != nil {
		return fmt.Errorf("发送响应失败: %w", err)
	}
	return nil
}
