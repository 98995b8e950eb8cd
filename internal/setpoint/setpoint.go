package setpoint

import (
	"strconv"
	"strings"

	"psu-controller/internal/channel"
)

// Commit 解析十进制文本并检查范围。解析失败或超出 [min, max] 时返回 false。
func Commit(text string, r channel.Range) (float32, bool) {
	text = strings.TrimSpace(text)
	if hexLiteral(text) {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return 0, false
	}
	value := float32(v)
	if !r.Contains(value) {
		return 0, false
	}
	return value, true
}

// hexLiteral ParseFloat 接受 0x 前缀的十六进制浮点数，操作员输入只允许十进制
func hexLiteral(text string) bool {
	text = strings.TrimLeft(text, "+-")
	return len(text) >= 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X')
}

// Event 一个输入周期内观察到的控件事件
type Event struct {
	LostFocus bool
	Confirmed bool
}

// Ready 失去焦点且确认信号同时出现时才提交
func (e Event) Ready() bool {
	return e.LostFocus && e.Confirmed
}

// Outcome 单个轴的提交结果
type Outcome int

const (
	Empty Outcome = iota
	Committed
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Rejected:
		return "rejected"
	default:
		return "empty"
	}
}

// Result 一次提交尝试的结果
type Result struct {
	Triggered bool
	Voltage   Outcome
	Current   Outcome
}

// Apply 在触发条件满足时提交通道的待输入文本。
// 无论是否有效，待输入文本都会被清空；无效值静默丢弃，原设定值保留。
func Apply(ch *channel.Channel, ev Event) Result {
	if !ev.Ready() {
		return Result{}
	}

	res := Result{Triggered: true}
	res.Voltage = commitAxis(ch.Pending.VoltageText, ch.Bounds.Voltage, &ch.Setpoint.Voltage)
	res.Current = commitAxis(ch.Pending.CurrentText, ch.Bounds.Current, &ch.Setpoint.Current)
	ch.Pending.Clear()
	return res
}

func commitAxis(text string, r channel.Range, dst *float32) Outcome {
	if strings.TrimSpace(text) == "" {
		return Empty
	}
	v, ok := Commit(text, r)
	if !ok {
		return Rejected
	}
	*dst = v
	return Committed
}
