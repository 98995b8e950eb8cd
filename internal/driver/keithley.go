package driver

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"psu-controller/internal/scpi"
	"psu-controller/pkg/protocol"
)

var (
	ErrNotFound = errors.New("未找到仪器")
	ErrClosed   = errors.New("连接已关闭")
)

// Options 连接与发现参数
type Options struct {
	Address      string
	Timeout      time.Duration
	Manufacturer string
	Model        string
}

// Keithley2230 通过原始套接字 SCPI 控制 2230 系列三通道电源
type Keithley2230 struct {
	mu       sync.Mutex
	conn     net.Conn
	reader   *bufio.Reader
	timeout  time.Duration
	log      *logrus.Logger
	identity protocol.Identity
	closed   bool
}

// Open 连接并发现仪器
func Open(opts Options, log *logrus.Logger) (*Keithley2230, error) {
	addr := opts.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, fmt.Sprint(protocol.DefaultPort))
	}

	conn, err := net.DialTimeout("tcp", addr, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("连接仪器失败 %s: %w", addr, err)
	}
	return Discover(conn, opts, log)
}

// Discover 在已建立的连接上查询身份，厂商与型号必须匹配，然后进入远程模式
func Discover(conn net.Conn, opts Options, log *logrus.Logger) (*Keithley2230, error) {
	k := New(conn, opts.Timeout, log)

	id, err := k.Identify()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !strings.EqualFold(id.Manufacturer, opts.Manufacturer) || !strings.EqualFold(id.Model, opts.Model) {
		conn.Close()
		log.Warnf("仪器身份不匹配: %s", id)
		return nil, fmt.Errorf("%w: No %s %s found.", ErrNotFound, opts.Manufacturer, opts.Model)
	}

	if err := k.Command("SYST:REM"); err != nil {
		conn.Close()
		return nil, err
	}
	log.Infof("发现仪器: %s", id)
	return k, nil
}

func New(conn net.Conn, timeout time.Duration, log *logrus.Logger) *Keithley2230 {
	return &Keithley2230{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
		log:     log,
	}
}

// Identity 发现阶段得到的身份
func (k *Keithley2230) Identity() protocol.Identity {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.identity
}

// Identify 查询 *IDN?
func (k *Keithley2230) Identify() (protocol.Identity, error) {
	resp, err := k.Query("*IDN?")
	if err != nil {
		return protocol.Identity{}, err
	}
	id, err := scpi.ParseIdentity(resp)
	if err != nil {
		return protocol.Identity{}, err
	}

	k.mu.Lock()
	k.identity = id
	k.mu.Unlock()
	return id, nil
}

// EnableChannel 选择通道并设置输出状态
func (k *Keithley2230) EnableChannel(ch protocol.Channel, state protocol.OutputState) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %s", scpi.ErrSyntax, ch)
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.send("INST:SEL " + ch.String()); err != nil {
		return err
	}
	return k.send("CHAN:OUTP " + state.String())
}

// SetChannel 设置通道电压与电流
func (k *Keithley2230) SetChannel(ch protocol.Channel, voltage, current float32) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %s", scpi.ErrSyntax, ch)
	}
	return k.Command(fmt.Sprintf("APPL %s,%s,%s", ch, scpi.FormatFloat(voltage), scpi.FormatFloat(current)))
}

// Measure 回读通道电压与电流
func (k *Keithley2230) Measure(ch protocol.Channel) (protocol.Reading, error) {
	if !ch.Valid() {
		return protocol.Reading{}, fmt.Errorf("%w: %s", scpi.ErrSyntax, ch)
	}

	resp, err := k.Query("MEAS:VOLT? " + ch.String())
	if err != nil {
		return protocol.Reading{}, err
	}
	v, err := scpi.ParseFloat(resp)
	if err != nil {
		return protocol.Reading{}, err
	}

	resp, err = k.Query("MEAS:CURR? " + ch.String())
	if err != nil {
		return protocol.Reading{}, err
	}
	i, err := scpi.ParseFloat(resp)
	if err != nil {
		return protocol.Reading{}, err
	}
	return protocol.Reading{Voltage: v, Current: i}, nil
}

// Command 发送不需要响应的命令
func (k *Keithley2230) Command(cmd string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.send(cmd)
}

// Query 发送查询并读取一行响应
func (k *Keithley2230) Query(cmd string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.send(cmd); err != nil {
		return "", err
	}
	if k.timeout > 0 {
		k.conn.SetReadDeadline(time.Now().Add(k.timeout))
	}
	line, err := k.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("读取响应失败 %q: %w", cmd, err)
	}
	line = strings.TrimRight(line, "\r\n")
	k.log.Debugf("<- %s", line)
	return line, nil
}

func (k *Keithley2230) send(cmd string) error {
	if k.closed {
		return ErrClosed
	}
	if k.timeout > 0 {
		k.conn.SetWriteDeadline(time.Now().Add(k.timeout))
	}
	if _, err := k.conn.Write([]byte(cmd + scpi.Terminator)); err != nil {
		return fmt.Errorf("发送命令失败 %q: %w", cmd, err)
	}
	k.log.Debugf("-> %s", cmd)
	return nil
}

// Close 将仪器交还前面板控制并关闭连接
func (k *Keithley2230) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	if err := k.send("SYST:LOC"); err != nil {
		k.log.Warnf("切换本地模式失败: %v", err)
	}
	k.closed = true
	return k.conn.Close()
}
