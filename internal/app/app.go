package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"

	"psu-controller/internal/channel"
	"psu-controller/internal/config"
	"psu-controller/internal/console"
	"psu-controller/internal/monitor"
	"psu-controller/internal/policy"
	"psu-controller/internal/reconcile"
	"psu-controller/internal/setpoint"
	"psu-controller/internal/telemetry"
	"psu-controller/pkg/protocol"
)

// Sink 同步成功后的快照接收方
type Sink interface {
	Publish(ctx context.Context, snap protocol.Snapshot) error
}

// ErrorReporter 致命错误的上报方，负责停止正常运行并展示错误
type ErrorReporter interface {
	Report(err error)
}

type logReporter struct {
	log *logrus.Logger
}

func (r logReporter) Report(err error) {
	r.log.Errorf("致命错误: %v", err)
}

// App 持有通道模型与同步节流状态，所有修改都在同一个 goroutine 上进行
type App struct {
	log      *logrus.Logger
	bank     channel.Bank
	time     reconcile.InstrumentTime
	engine   *reconcile.Engine
	monitor  *monitor.Monitor
	sink     Sink
	serial   string
	reporter ErrorReporter
	clock    clockz.Clock
	frame    time.Duration
	out      io.Writer
}

type Option func(*App)

// WithMonitor 启用指标
func WithMonitor(m *monitor.Monitor) Option {
	return func(a *App) { a.monitor = m }
}

// WithSink 启用遥测，serial 用于区分仪器
func WithSink(s Sink, serial string) Option {
	return func(a *App) {
		a.sink = s
		a.serial = serial
	}
}

// WithReporter 设置致命错误上报方
func WithReporter(r ErrorReporter) Option {
	return func(a *App) { a.reporter = r }
}

// WithClock 设置时钟，测试中使用 clockz.FakeClock
func WithClock(c clockz.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithOutput 设置控制台输出
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithBounds 覆盖通道安全范围
func WithBounds(overrides map[channel.ID]channel.Bounds) Option {
	return func(a *App) { a.bank = channel.NewBankWithBounds(overrides) }
}

func New(cfg config.SyncConfig, driver reconcile.Driver, log *logrus.Logger, opts ...Option) *App {
	a := &App{
		log:      log,
		bank:     channel.NewBank(),
		reporter: logReporter{log: log},
		clock:    clockz.RealClock,
		frame:    cfg.FrameInterval,
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.time = reconcile.NewInstrumentTime(cfg.RefreshRate, a.clock.Now())
	a.engine = reconcile.NewEngine(driver, log, a.monitor)
	return a
}

// Bank 通道模型，供展示层读写
func (a *App) Bank() *channel.Bank {
	return &a.bank
}

// Time 当前同步节流状态
func (a *App) Time() reconcile.InstrumentTime {
	return a.time
}

// Tick 每帧调用一次：先执行互斥策略，到期时再同步到仪器
func (a *App) Tick(now time.Time) error {
	a.bank = policy.Resolve(a.bank)

	synced, err := a.engine.Sync(now, &a.bank, &a.time)
	if err != nil {
		return err
	}
	if synced {
		a.afterSync(now)
	}
	return nil
}

func (a *App) afterSync(now time.Time) {
	for _, ch := range a.bank.Channels() {
		a.monitor.SetChannel(ch.ID.String(), ch.Enabled, ch.Setpoint.Voltage, ch.Setpoint.Current)
	}

	if a.sink == nil {
		return
	}
	snap := telemetry.BuildSnapshot(a.serial, now, &a.bank)
	if err := a.sink.Publish(context.Background(), snap); err != nil {
		a.log.Warnf("发布遥测失败: %v", err)
	}
}

// Toggle 切换通道使能，复合模式占用时对 CH1/CH2 的打开请求被忽略
func (a *App) Toggle(id channel.ID) bool {
	if !policy.Toggle(&a.bank, id) {
		a.log.Infof("忽略切换 %s: 复合模式已使能", id)
		return false
	}
	a.log.Infof("通道 %s: %s", id, channel.Label(a.bank.Enabled(id)))
	return true
}

// Commit 提交钩子，失去焦点与确认信号同时出现时由展示层调用。
// 通道不可编辑时丢弃待输入文本，设定值不变。
func (a *App) Commit(id channel.ID, ev setpoint.Event) setpoint.Result {
	ch := a.bank.Get(id)
	if ch == nil {
		return setpoint.Result{}
	}
	if !a.bank.Editable(id) {
		ch.Pending.Clear()
		a.log.Infof("忽略 %s 设定值输入: 通道锁定", id)
		return setpoint.Result{}
	}

	res := setpoint.Apply(ch, ev)
	if res.Triggered {
		a.recordCommit(id, "voltage", res.Voltage)
		a.recordCommit(id, "current", res.Current)
	}
	return res
}

func (a *App) recordCommit(id channel.ID, axis string, o setpoint.Outcome) {
	if o == setpoint.Empty {
		return
	}
	a.monitor.InputCommitted(axis, o.String())
	a.log.Debugf("通道 %s %s 输入: %s", id, axis, o)
}

// Apply 执行一条操作员命令，返回是否请求退出
func (a *App) Apply(cmd console.Command) bool {
	switch cmd.Kind {
	case console.Toggle:
		a.Toggle(cmd.Channel)
	case console.Set:
		ch := a.bank.Get(cmd.Channel)
		ch.Pending.VoltageText = cmd.Text
		ch.Pending.CurrentText = cmd.Current
		a.Commit(cmd.Channel, setpoint.Event{LostFocus: true, Confirmed: true})
	case console.Type:
		if !a.bank.Editable(cmd.Channel) {
			fmt.Fprintf(a.out, "%s 已锁定\n", cmd.Channel)
			break
		}
		ch := a.bank.Get(cmd.Channel)
		if cmd.Axis == console.Voltage {
			ch.Pending.VoltageText = cmd.Text
		} else {
			ch.Pending.CurrentText = cmd.Text
		}
	case console.Enter:
		a.Commit(cmd.Channel, setpoint.Event{Confirmed: true})
	case console.Blur:
		a.Commit(cmd.Channel, setpoint.Event{LostFocus: true})
	case console.Status:
		if err := console.Render(a.out, &a.bank); err != nil {
			a.log.Warnf("输出状态失败: %v", err)
		}
	case console.Help:
		fmt.Fprintln(a.out, console.Usage)
	case console.Quit:
		return true
	}
	return false
}

// Run 每帧执行一次 Tick，操作员输入只在两次 Tick 之间应用。
// 同步失败交给 ErrorReporter 并返回错误。
func (a *App) Run(ctx context.Context, lines <-chan string) error {
	ticker := a.clock.NewTicker(a.frame)
	defer ticker.Stop()

	a.log.Infof("控制循环启动: 帧间隔 %s, 同步间隔 %s", a.frame, a.time.RefreshRate)
	for {
		select {
		case <-ctx.Done():
			a.log.Info("控制循环停止")
			return nil

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			cmd, err := console.Parse(line)
			if err != nil {
				fmt.Fprintln(a.out, err)
				continue
			}
			if a.Apply(cmd) {
				a.log.Info("操作员退出")
				return nil
			}

		case <-ticker.C():
			if err := a.Tick(a.clock.Now()); err != nil {
				a.reporter.Report(err)
				return err
			}
		}
	}
}
