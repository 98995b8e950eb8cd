package reconcile

//go:generate mockgen -destination=mock_driver_test.go -package=reconcile -source=engine.go

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"psu-controller/internal/channel"
	"psu-controller/internal/monitor"
	"psu-controller/pkg/protocol"
)

// Driver 仪器驱动：使能通道与设置电压/电流
type Driver interface {
	EnableChannel(ch protocol.Channel, state protocol.OutputState) error
	SetChannel(ch protocol.Channel, voltage, current float32) error
}

// Measurer 可选的回读能力
type Measurer interface {
	Measure(ch protocol.Channel) (protocol.Reading, error)
}

// 同步中的操作名
const (
	OpEnable  = "enable"
	OpSet     = "set"
	OpMeasure = "measure"
)

// SyncError 同步中的仪器通信失败，对当前 tick 是致命的
type SyncError struct {
	Channel protocol.Channel
	Op      string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("同步失败 [%s %s]: %v", e.Channel, e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// InstrumentTime 同步节流状态，由调用方持有并显式传入
type InstrumentTime struct {
	RefreshRate time.Duration
	LastSync    time.Time
}

// NewInstrumentTime 初始化节流状态，LastSync 为启动时刻
func NewInstrumentTime(refreshRate time.Duration, now time.Time) InstrumentTime {
	return InstrumentTime{RefreshRate: refreshRate, LastSync: now}
}

// Due 距上次同步是否已超过刷新间隔
func (t InstrumentTime) Due(now time.Time) bool {
	return now.Sub(t.LastSync) > t.RefreshRate
}

// State 同步状态机
type State int

const (
	Idle State = iota
	Syncing
)

func (s State) String() string {
	if s == Syncing {
		return "syncing"
	}
	return "idle"
}

// Engine 将期望通道状态推送到仪器
type Engine struct {
	driver  Driver
	log     *logrus.Logger
	monitor *monitor.Monitor
	state   State
}

func NewEngine(driver Driver, log *logrus.Logger, mon *monitor.Monitor) *Engine {
	return &Engine{
		driver:  driver,
		log:     log,
		monitor: mon,
	}
}

// State 当前状态
func (e *Engine) State() State {
	return e.state
}

// Sync 到期时执行一次同步，返回本次是否执行。
// bank 必须已经过互斥策略处理。LastSync 在写入前无条件更新，
// 第一次写入失败即中止本次同步，已发出的写入不回滚。
func (e *Engine) Sync(now time.Time, bank *channel.Bank, clock *InstrumentTime) (bool, error) {
	if !clock.Due(now) {
		return false, nil
	}
	clock.LastSync = now

	e.state = Syncing
	defer func() { e.state = Idle }()
	e.monitor.PassDone()

	for _, pch := range protocol.PhysicalChannels {
		if err := e.write(pch, bank.Get(channel.Logical(pch))); err != nil {
			return true, err
		}
	}

	if m, ok := e.driver.(Measurer); ok {
		if err := e.readback(m, bank); err != nil {
			return true, err
		}
	}

	e.log.Debugf("同步完成: %s", now.Format("15:04:05.000"))
	return true, nil
}

func (e *Engine) write(pch protocol.Channel, ch *channel.Channel) error {
	start := time.Now()
	if err := e.driver.EnableChannel(pch, protocol.StateOf(ch.Enabled)); err != nil {
		return e.fail(pch, OpEnable, err)
	}
	e.monitor.ObserveWrite(time.Since(start))

	start = time.Now()
	if err := e.driver.SetChannel(pch, ch.Setpoint.Voltage, ch.Setpoint.Current); err != nil {
		return e.fail(pch, OpSet, err)
	}
	e.monitor.ObserveWrite(time.Since(start))

	e.log.Debugf("写入 %s: 输出=%s, 电压=%.3fV, 电流=%.3fA",
		pch, protocol.StateOf(ch.Enabled), ch.Setpoint.Voltage, ch.Setpoint.Current)
	return nil
}

func (e *Engine) readback(m Measurer, bank *channel.Bank) error {
	for _, pch := range protocol.PhysicalChannels {
		r, err := m.Measure(pch)
		if err != nil {
			return e.fail(pch, OpMeasure, err)
		}
		bank.Get(channel.Logical(pch)).Measured = channel.Measurement{
			Voltage: r.Voltage,
			Current: r.Current,
			Power:   r.Power(),
		}
		e.monitor.SetMeasured(pch.String(), r.Voltage, r.Current, r.Power())
	}
	return nil
}

func (e *Engine) fail(ch protocol.Channel, op string, err error) error {
	e.monitor.PassFailed(ch.String(), op)
	e.log.Errorf("仪器写入失败 [%s %s]: %v", ch, op, err)
	return &SyncError{Channel: ch, Op: op, Err: err}
}
