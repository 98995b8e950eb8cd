package protocol

import (
	"fmt"
	"time"
)

// 仪器识别常量（用于发现）
const (
	Manufacturer = "KEITHLEY INSTRUMENTS"
	Model        = "2230-30-1"

	// 原始套接字 SCPI 默认端口
	DefaultPort = 5025
)

// Channel 仪器上可寻址的物理通道
type Channel uint8

const (
	CH1 Channel = iota + 1
	CH2
	CH3
)

// PhysicalChannels 固定的同步顺序
var PhysicalChannels = [...]Channel{CH1, CH2, CH3}

func (c Channel) String() string {
	switch c {
	case CH1:
		return "CH1"
	case CH2:
		return "CH2"
	case CH3:
		return "CH3"
	default:
		return fmt.Sprintf("CH?(%d)", uint8(c))
	}
}

// Valid 是否为仪器支持的通道
func (c Channel) Valid() bool {
	return c >= CH1 && c <= CH3
}

// OutputState 通道输出状态
type OutputState bool

const (
	OFF OutputState = false
	ON  OutputState = true
)

// StateOf 将布尔使能值转换为输出状态
func StateOf(enabled bool) OutputState {
	return OutputState(enabled)
}

func (s OutputState) String() string {
	if s {
		return "ON"
	}
	return "OFF"
}

// Identity *IDN? 返回的仪器身份
type Identity struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s %s (SN %s, FW %s)", id.Manufacturer, id.Model, id.Serial, id.Firmware)
}

// Reading 单通道回读值，功率由电压和电流推导
type Reading struct {
	Voltage float32 `json:"voltage"`
	Current float32 `json:"current"`
}

// Power 推导功率 (W)
func (r Reading) Power() float32 {
	return r.Voltage * r.Current
}

// ChannelStatus 遥测中的单通道状态
type ChannelStatus struct {
	Channel         string  `json:"channel"`
	Enabled         bool    `json:"enabled"`
	SetVoltage      float32 `json:"set_voltage"`
	SetCurrent      float32 `json:"set_current"`
	MeasuredVoltage float32 `json:"measured_voltage"`
	MeasuredCurrent float32 `json:"measured_current"`
	MeasuredPower   float32 `json:"measured_power"`
}

// Snapshot 一次同步后的全部通道状态
type Snapshot struct {
	Instrument string          `json:"instrument"`
	Timestamp  time.Time       `json:"timestamp"`
	Channels   []ChannelStatus `json:"channels"`
}
