package monitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Monitor 同步引擎的 Prometheus 指标。nil *Monitor 的所有方法都是空操作。
type Monitor struct {
	log      *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server

	// 同步指标
	SyncPasses    prometheus.Counter
	SyncFailures  *prometheus.CounterVec
	WriteDuration prometheus.Histogram

	// 通道状态指标
	ChannelEnabled  *prometheus.GaugeVec
	ChannelSetpoint *prometheus.GaugeVec
	ChannelMeasured *prometheus.GaugeVec

	// 操作员输入指标
	InputCommits *prometheus.CounterVec
}

func NewMonitor(log *logrus.Logger) *Monitor {
	m := &Monitor{
		log:      log,
		registry: prometheus.NewRegistry(),

		SyncPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psu_sync_passes_total",
			Help: "执行的同步次数",
		}),
		SyncFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psu_sync_failures_total",
				Help: "仪器写入失败次数",
			},
			[]string{"channel", "op"},
		),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "psu_write_duration_seconds",
			Help:    "单条仪器命令耗时",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		ChannelEnabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psu_channel_enabled",
				Help: "通道使能状态 (1=ON)",
			},
			[]string{"channel"},
		),
		ChannelSetpoint: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psu_channel_setpoint",
				Help: "通道设定值",
			},
			[]string{"channel", "axis"},
		),
		ChannelMeasured: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psu_channel_measured",
				Help: "通道回读值",
			},
			[]string{"channel", "quantity"},
		),
		InputCommits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psu_input_commits_total",
				Help: "设定值提交尝试",
			},
			[]string{"axis", "result"},
		),
	}

	m.registry.MustRegister(
		m.SyncPasses,
		m.SyncFailures,
		m.WriteDuration,
		m.ChannelEnabled,
		m.ChannelSetpoint,
		m.ChannelMeasured,
		m.InputCommits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveWrite 记录一次仪器命令耗时
func (m *Monitor) ObserveWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.WriteDuration.Observe(d.Seconds())
}

// PassDone 记录一次同步
func (m *Monitor) PassDone() {
	if m == nil {
		return
	}
	m.SyncPasses.Inc()
}

// PassFailed 记录一次失败的写入
func (m *Monitor) PassFailed(channel, op string) {
	if m == nil {
		return
	}
	m.SyncFailures.WithLabelValues(channel, op).Inc()
}

// SetChannel 更新通道状态指标
func (m *Monitor) SetChannel(channel string, enabled bool, voltage, current float32) {
	if m == nil {
		return
	}
	v := 0.0
	if enabled {
		v = 1
	}
	m.ChannelEnabled.WithLabelValues(channel).Set(v)
	m.ChannelSetpoint.WithLabelValues(channel, "voltage").Set(float64(voltage))
	m.ChannelSetpoint.WithLabelValues(channel, "current").Set(float64(current))
}

// SetMeasured 更新通道回读指标
func (m *Monitor) SetMeasured(channel string, voltage, current, power float32) {
	if m == nil {
		return
	}
	m.ChannelMeasured.WithLabelValues(channel, "voltage").Set(float64(voltage))
	m.ChannelMeasured.WithLabelValues(channel, "current").Set(float64(current))
	m.ChannelMeasured.WithLabelValues(channel, "power").Set(float64(power))
}

// InputCommitted 记录一次设定值提交结果
func (m *Monitor) InputCommitted(axis, result string) {
	if m == nil {
		return
	}
	m.InputCommits.WithLabelValues(axis, result).Inc()
}

// Handler 返回 /metrics 与 /health 路由
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// StartMetricsServer 启动Metrics HTTP服务器
func (m *Monitor) StartMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	m.server = &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.log.Infof("Metrics服务器启动: %s", addr)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Errorf("Metrics服务器错误: %v", err)
		}
	}()
}

// Close 关闭Metrics服务器
func (m *Monitor) Close() error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Close()
}
