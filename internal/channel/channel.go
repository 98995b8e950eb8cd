package channel

import (
	"fmt"
	"strings"

	"psu-controller/pkg/protocol"
)

// ID 逻辑通道标识：三个物理通道加两个复合模式
type ID uint8

const (
	CH1 ID = iota + 1
	CH2
	CH3
	Series
	Parallel
)

const count = 5

// IDs 所有逻辑通道，按显示顺序
var IDs = [...]ID{CH1, CH2, CH3, Series, Parallel}

func (id ID) String() string {
	switch id {
	case CH1:
		return "CH1"
	case CH2:
		return "CH2"
	case CH3:
		return "CH3"
	case Series:
		return "Series"
	case Parallel:
		return "Parallel"
	default:
		return fmt.Sprintf("ID(%d)", uint8(id))
	}
}

// Valid 是否为已知通道
func (id ID) Valid() bool {
	return id >= CH1 && id <= Parallel
}

// Composite 是否为复合模式（串联/并联）
func (id ID) Composite() bool {
	return id == Series || id == Parallel
}

// Physical 返回对应的仪器通道，复合模式没有独立的仪器通道
func (id ID) Physical() (protocol.Channel, bool) {
	switch id {
	case CH1:
		return protocol.CH1, true
	case CH2:
		return protocol.CH2, true
	case CH3:
		return protocol.CH3, true
	}
	return 0, false
}

// Logical 仪器通道对应的逻辑通道
func Logical(ch protocol.Channel) ID {
	return ID(ch)
}

// ParseID 解析操作员输入的通道名
func ParseID(s string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "ch1":
		return CH1, nil
	case "2", "ch2":
		return CH2, nil
	case "3", "ch3":
		return CH3, nil
	case "s", "ser", "series":
		return Series, nil
	case "p", "par", "parallel":
		return Parallel, nil
	}
	return 0, fmt.Errorf("未知通道: %q", s)
}

// Range 闭区间 [Min, Max]
type Range struct {
	Min float32 `yaml:"min"`
	Max float32 `yaml:"max"`
}

// Contains 值是否在闭区间内，NaN 永远不在区间内
func (r Range) Contains(v float32) bool {
	return v >= r.Min && v <= r.Max
}

// Within 区间是否完全落在 outer 之内
func (r Range) Within(outer Range) bool {
	return r.Min <= r.Max && r.Min >= outer.Min && r.Max <= outer.Max
}

// Bounds 每通道静态安全范围
type Bounds struct {
	Voltage Range `yaml:"voltage"`
	Current Range `yaml:"current"`
}

// Within 电压与电流范围是否都在 outer 之内
func (b Bounds) Within(outer Bounds) bool {
	return b.Voltage.Within(outer.Voltage) && b.Current.Within(outer.Current)
}

// Setpoint 已提交的目标值 (V, A)
type Setpoint struct {
	Voltage float32
	Current float32
}

// PendingInput 尚未提交的操作员文本
type PendingInput struct {
	VoltageText string
	CurrentText string
}

// Clear 清空待提交文本
func (p *PendingInput) Clear() {
	p.VoltageText = ""
	p.CurrentText = ""
}

// Measurement 最近一次回读值
type Measurement struct {
	Voltage float32
	Current float32
	Power   float32
}

// Channel 单个逻辑通道的期望状态。被动容器，不做任何校验。
type Channel struct {
	ID       ID
	Enabled  bool
	Setpoint Setpoint
	Pending  PendingInput
	Measured Measurement
	Bounds   Bounds
}

// Toggle 翻转使能标志
func (c *Channel) Toggle() {
	c.Enabled = !c.Enabled
}

// DefaultBounds 2230-30-1 各通道的安全范围
func DefaultBounds(id ID) Bounds {
	switch id {
	case CH3:
		return Bounds{Voltage: Range{0, 6}, Current: Range{0, 5}}
	case Series:
		return Bounds{Voltage: Range{0, 60}, Current: Range{0, 1.5}}
	case Parallel:
		return Bounds{Voltage: Range{0, 30}, Current: Range{0, 3}}
	default:
		return Bounds{Voltage: Range{0, 30}, Current: Range{0, 1.5}}
	}
}
