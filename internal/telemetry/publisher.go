package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"psu-controller/internal/channel"
	"psu-controller/internal/config"
	"psu-controller/pkg/protocol"
)

// Publisher 将同步后的通道快照发布到 Redis
type Publisher struct {
	client  *redis.Client
	channel string
	history int64
	timeout time.Duration
	log     *logrus.Logger
}

func NewPublisher(cfg config.RedisConfig, log *logrus.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: time.Second,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	log.Info("Redis连接成功")

	return &Publisher{
		client:  client,
		channel: cfg.Channel,
		history: cfg.History,
		timeout: cfg.Timeout,
		log:     log,
	}, nil
}

// HistoryKey 每台仪器的历史列表键
func HistoryKey(serial string) string {
	return fmt.Sprintf("psu:%s:telemetry", serial)
}

// Publish 发布快照并写入有界历史列表
func (p *Publisher) Publish(ctx context.Context, snap protocol.Snapshot) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}

	key := HistoryKey(snap.Instrument)
	pipe := p.client.Pipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.LPush(ctx, key, data)
	if p.history > 0 {
		pipe.LTrim(ctx, key, 0, p.history-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("发布快照失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (p *Publisher) Close() error {
	return p.client.Close()
}

// BuildSnapshot 从通道模型生成快照
func BuildSnapshot(instrument string, now time.Time, b *channel.Bank) protocol.Snapshot {
	snap := protocol.Snapshot{
		Instrument: instrument,
		Timestamp:  now,
		Channels:   make([]protocol.ChannelStatus, 0, len(channel.IDs)),
	}
	for _, ch := range b.Channels() {
		snap.Channels = append(snap.Channels, protocol.ChannelStatus{
			Channel:         ch.ID.String(),
			Enabled:         ch.Enabled,
			SetVoltage:      ch.Setpoint.Voltage,
			SetCurrent:      ch.Setpoint.Current,
			MeasuredVoltage: ch.Measured.Voltage,
			MeasuredCurrent: ch.Measured.Current,
			MeasuredPower:   ch.Measured.Power,
		})
	}
	return snap
}
