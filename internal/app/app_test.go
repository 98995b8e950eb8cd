package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"psu-controller/internal/channel"
	"psu-controller/internal/config"
	"psu-controller/internal/console"
	"psu-controller/internal/monitor"
	"psu-controller/internal/reconcile"
	"psu-controller/internal/setpoint"
	"psu-controller/pkg/protocol"
)

var errLink = errors.New("link down")

// fakeDriver 记录调用，可在指定调用上失败
type fakeDriver struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (d *fakeDriver) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	if call == d.failOn {
		return errLink
	}
	return nil
}

func (d *fakeDriver) EnableChannel(ch protocol.Channel, state protocol.OutputState) error {
	return d.record(fmt.Sprintf("enable %s %s", ch, state))
}

func (d *fakeDriver) SetChannel(ch protocol.Channel, v, i float32) error {
	return d.record(fmt.Sprintf("set %s %g %g", ch, v, i))
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

type fakeSink struct {
	snaps []protocol.Snapshot
	err   error
}

func (s *fakeSink) Publish(_ context.Context, snap protocol.Snapshot) error {
	s.snaps = append(s.snaps, snap)
	return s.err
}

type fakeReporter struct {
	mu  sync.Mutex
	err error
}

func (r *fakeReporter) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeReporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var syncCfg = config.SyncConfig{RefreshRate: 200 * time.Millisecond, FrameInterval: 10 * time.Millisecond}

func newTestApp(d reconcile.Driver, opts ...Option) (*App, time.Time) {
	clock := clockz.NewFakeClock()
	opts = append([]Option{WithClock(clock), WithOutput(io.Discard)}, opts...)
	a := New(syncCfg, d, quietLogger(), opts...)
	return a, clock.Now()
}

var fullPassAllOff = []string{
	"enable CH1 OFF", "set CH1 0 0",
	"enable CH2 OFF", "set CH2 0 0",
	"enable CH3 OFF", "set CH3 0 0",
}

func TestTickThrottlesToRefreshRate(t *testing.T) {
	d := &fakeDriver{}
	a, start := newTestApp(d)

	require.NoError(t, a.Tick(start.Add(100*time.Millisecond)))
	assert.Empty(t, d.Calls())

	first := start.Add(250 * time.Millisecond)
	require.NoError(t, a.Tick(first))
	assert.Equal(t, fullPassAllOff, d.Calls())
	assert.Equal(t, first, a.Time().LastSync)

	d.Reset()
	require.NoError(t, a.Tick(first.Add(150*time.Millisecond)))
	assert.Empty(t, d.Calls())

	require.NoError(t, a.Tick(first.Add(201*time.Millisecond)))
	assert.Len(t, d.Calls(), 6)
}

func TestTickResolvesBeforeWriting(t *testing.T) {
	d := &fakeDriver{}
	a, start := newTestApp(d)

	a.Toggle(channel.CH1)
	a.Toggle(channel.CH2)
	// 绕过 Toggle 直接写模型，Tick 仍需在写入前处理冲突
	a.Bank().Get(channel.Series).Enabled = true

	require.NoError(t, a.Tick(start.Add(time.Second)))

	assert.False(t, a.Bank().Enabled(channel.CH1))
	assert.False(t, a.Bank().Enabled(channel.CH2))
	assert.True(t, a.Bank().Enabled(channel.Series))
	assert.Equal(t, fullPassAllOff, d.Calls())
}

func TestSetpointScenario(t *testing.T) {
	d := &fakeDriver{}
	a, start := newTestApp(d)

	a.Apply(console.Command{Kind: console.Set, Channel: channel.CH1, Text: "35"})
	assert.Equal(t, float32(0), a.Bank().Get(channel.CH1).Setpoint.Voltage)

	a.Apply(console.Command{Kind: console.Set, Channel: channel.CH1, Text: "12.5", Current: "1.5"})
	a.Apply(console.Command{Kind: console.Toggle, Channel: channel.CH1})
	require.NoError(t, a.Tick(start.Add(time.Second)))

	assert.Equal(t, []string{"enable CH1 ON", "set CH1 12.5 1.5"}, d.Calls()[:2])
}

func TestCommitNeedsBothSignals(t *testing.T) {
	a, _ := newTestApp(&fakeDriver{})

	a.Apply(console.Command{Kind: console.Type, Channel: channel.CH3, Axis: console.Voltage, Text: "5"})
	a.Apply(console.Command{Kind: console.Type, Channel: channel.CH3, Axis: console.Current, Text: "2"})
	a.Apply(console.Command{Kind: console.Enter, Channel: channel.CH3})
	a.Apply(console.Command{Kind: console.Blur, Channel: channel.CH3})

	ch := a.Bank().Get(channel.CH3)
	assert.Equal(t, channel.Setpoint{}, ch.Setpoint)
	assert.Equal(t, "5", ch.Pending.VoltageText)

	res := a.Commit(channel.CH3, setpoint.Event{LostFocus: true, Confirmed: true})
	assert.True(t, res.Triggered)
	assert.Equal(t, channel.Setpoint{Voltage: 5, Current: 2}, ch.Setpoint)
	assert.Equal(t, channel.PendingInput{}, ch.Pending)
}

func TestSetpointLockedWhileOutputOn(t *testing.T) {
	d := &fakeDriver{}
	a, start := newTestApp(d)

	a.Apply(console.Command{Kind: console.Set, Channel: channel.CH1, Text: "12"})
	a.Toggle(channel.CH1)
	a.Bank().Get(channel.CH1).Pending.VoltageText = "30"

	res := a.Commit(channel.CH1, setpoint.Event{LostFocus: true, Confirmed: true})
	assert.False(t, res.Triggered)
	assert.Equal(t, channel.PendingInput{}, a.Bank().Get(channel.CH1).Pending)

	a.Apply(console.Command{Kind: console.Set, Channel: channel.CH1, Text: "30"})
	a.Apply(console.Command{Kind: console.Type, Channel: channel.CH1, Axis: console.Voltage, Text: "25"})
	assert.Equal(t, float32(12), a.Bank().Get(channel.CH1).Setpoint.Voltage)
	assert.Empty(t, a.Bank().Get(channel.CH1).Pending.VoltageText)

	require.NoError(t, a.Tick(start.Add(time.Second)))
	assert.Equal(t, []string{"enable CH1 ON", "set CH1 12 0"}, d.Calls()[:2])

	a.Toggle(channel.CH1)
	a.Apply(console.Command{Kind: console.Set, Channel: channel.CH1, Text: "30"})
	assert.Equal(t, float32(30), a.Bank().Get(channel.CH1).Setpoint.Voltage)
}

func TestDiscreteSetpointsLockedDuringComposite(t *testing.T) {
	a, _ := newTestApp(&fakeDriver{})
	a.Toggle(channel.Parallel)

	a.Apply(console.Command{Kind: console.Set, Channel: channel.CH2, Text: "5"})
	assert.Equal(t, float32(0), a.Bank().Get(channel.CH2).Setpoint.Voltage)

	a.Apply(console.Command{Kind: console.Set, Channel: channel.CH3, Text: "5"})
	assert.Equal(t, float32(5), a.Bank().Get(channel.CH3).Setpoint.Voltage)

	a.Apply(console.Command{Kind: console.Set, Channel: channel.Series, Text: "48"})
	assert.Equal(t, float32(48), a.Bank().Get(channel.Series).Setpoint.Voltage)
}

func TestToggleIgnoredDuringComposite(t *testing.T) {
	a, _ := newTestApp(&fakeDriver{})

	assert.True(t, a.Toggle(channel.Parallel))
	assert.False(t, a.Toggle(channel.CH1))
	assert.True(t, a.Toggle(channel.Series))
	assert.False(t, a.Bank().Enabled(channel.Parallel))
}

func TestFailureAbortsTickAndNextTickResyncs(t *testing.T) {
	d := &fakeDriver{failOn: "set CH2 0 0"}
	a, start := newTestApp(d)

	err := a.Tick(start.Add(time.Second))

	require.ErrorIs(t, err, errLink)
	assert.Equal(t, fullPassAllOff[:4], d.Calls(), "CH3 is not written after CH2 fails")

	d.Reset()
	d.failOn = ""
	require.NoError(t, a.Tick(start.Add(2*time.Second)))
	assert.Equal(t, fullPassAllOff, d.Calls())
}

func TestAfterSyncPublishesTelemetryAndMetrics(t *testing.T) {
	sink := &fakeSink{}
	mon := monitor.NewMonitor(quietLogger())
	a, start := newTestApp(&fakeDriver{}, WithSink(sink, "SIM0001"), WithMonitor(mon))
	a.Toggle(channel.CH3)

	now := start.Add(time.Second)
	require.NoError(t, a.Tick(now))

	require.Len(t, sink.snaps, 1)
	assert.Equal(t, "SIM0001", sink.snaps[0].Instrument)
	assert.Equal(t, now, sink.snaps[0].Timestamp)
	assert.True(t, sink.snaps[0].Channels[2].Enabled)
	assert.Equal(t, 1.0, testutil.ToFloat64(mon.ChannelEnabled.WithLabelValues("CH3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mon.SyncPasses))

	// 遥测失败不影响同步
	sink.err = errors.New("redis down")
	assert.NoError(t, a.Tick(now.Add(time.Second)))
}

func TestWithBounds(t *testing.T) {
	custom := channel.Bounds{Voltage: channel.Range{Min: 0, Max: 5}, Current: channel.Range{Min: 0, Max: 1}}
	a, _ := newTestApp(&fakeDriver{}, WithBounds(map[channel.ID]channel.Bounds{channel.CH3: custom}))

	a.Apply(console.Command{Kind: console.Set, Channel: channel.CH3, Text: "6"})
	assert.Equal(t, float32(0), a.Bank().Get(channel.CH3).Setpoint.Voltage)
}

func TestStatusAndHelpOutput(t *testing.T) {
	var out bytes.Buffer
	a, _ := newTestApp(&fakeDriver{}, WithOutput(&out))

	assert.False(t, a.Apply(console.Command{Kind: console.Status}))
	assert.Contains(t, out.String(), "Parallel")
	assert.False(t, a.Apply(console.Command{Kind: console.Help}))
	assert.Contains(t, out.String(), "toggle <ch>")
	assert.True(t, a.Apply(console.Command{Kind: console.Quit}))
}

func TestRunAppliesInputAndReportsFailure(t *testing.T) {
	clock := clockz.NewFakeClock()
	d := &fakeDriver{failOn: "set CH3 0 0"}
	rep := &fakeReporter{}
	a := New(syncCfg, d, quietLogger(), WithClock(clock), WithOutput(io.Discard), WithReporter(rep))

	lines := make(chan string)
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), lines) }()

	lines <- "toggle 1"
	lines <- "not a command"

	var err error
	require.Eventually(t, func() bool {
		select {
		case err = <-done:
			return true
		default:
			clock.Advance(50 * time.Millisecond)
			return false
		}
	}, 5*time.Second, time.Millisecond)

	require.ErrorIs(t, err, errLink)
	assert.ErrorIs(t, rep.Err(), errLink)
	assert.Equal(t, "enable CH1 ON", d.Calls()[0])
}

func TestRunStopsOnQuitAndCancel(t *testing.T) {
	a, _ := newTestApp(&fakeDriver{})
	lines := make(chan string, 1)
	lines <- "quit"
	assert.NoError(t, a.Run(context.Background(), lines))

	b, _ := newTestApp(&fakeDriver{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Run(ctx, nil))
}
