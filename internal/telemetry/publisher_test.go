package telemetry

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psu-controller/internal/channel"
	"psu-controller/internal/config"
)

func TestBuildSnapshot(t *testing.T) {
	b := channel.NewBank()
	ch := b.Get(channel.CH1)
	ch.Enabled = true
	ch.Setpoint = channel.Setpoint{Voltage: 12.5, Current: 1}
	ch.Measured = channel.Measurement{Voltage: 12.5, Current: 0.5, Power: 6.25}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	snap := BuildSnapshot("SIM0001", now, &b)

	require.Len(t, snap.Channels, 5)
	assert.Equal(t, "SIM0001", snap.Instrument)
	assert.Equal(t, now, snap.Timestamp)
	assert.Equal(t, "CH1", snap.Channels[0].Channel)
	assert.True(t, snap.Channels[0].Enabled)
	assert.Equal(t, float32(6.25), snap.Channels[0].MeasuredPower)
	assert.Equal(t, "Parallel", snap.Channels[4].Channel)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"set_voltage":12.5`)
}

func TestHistoryKey(t *testing.T) {
	assert.Equal(t, "psu:SIM0001:telemetry", HistoryKey("SIM0001"))
}

func TestNewPublisherUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.GetDefaultConfig().Redis
	cfg.Addr = addr

	_, err = NewPublisher(cfg, log)
	assert.Error(t, err)
}
