package simulator

import (
	"fmt"
	"sync"

	"psu-controller/internal/scpi"
	"psu-controller/pkg/protocol"
)

// SCPI 错误队列条目
const (
	errNone          = `0,"No error"`
	errUndefined     = `-113,"Undefined header"`
	errSyntax        = `-102,"Syntax error"`
	errOutOfRange    = `-222,"Data out of range"`
	errMissingParam  = `-109,"Missing parameter"`
	errQueueCapacity = 16
)

type output struct {
	on      bool
	voltage float32
	current float32
}

type limit struct {
	voltage float32
	current float32
}

// Instrument 2230-30-1 的内存模型，可被多个连接共享
type Instrument struct {
	mu       sync.Mutex
	identity protocol.Identity
	load     float32
	remote   bool
	selected protocol.Channel
	outputs  [3]output
	limits   [3]limit
	errors   []string
}

// NewInstrument 创建模拟仪器，load 为每通道的电阻负载 (Ω)，<=0 表示开路
func NewInstrument(id protocol.Identity, load float32) *Instrument {
	return &Instrument{
		identity: id,
		load:     load,
		selected: protocol.CH1,
		limits: [3]limit{
			{voltage: 30, current: 1.5},
			{voltage: 30, current: 1.5},
			{voltage: 6, current: 5},
		},
	}
}

// DefaultIdentity 模拟仪器的默认身份
func DefaultIdentity() protocol.Identity {
	return protocol.Identity{
		Manufacturer: protocol.Manufacturer,
		Model:        protocol.Model,
		Serial:       "SIM0001",
		Firmware:     "1.16-1.04",
	}
}

// Output 返回通道的输出与设置
func (in *Instrument) Output(ch protocol.Channel) (on bool, voltage, current float32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	o := in.outputs[ch-1]
	return o.on, o.voltage, o.current
}

// Remote 是否处于远程模式
func (in *Instrument) Remote() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.remote
}

// Execute 执行一条命令，查询返回响应
func (in *Instrument) Execute(cmd scpi.Command) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch {
	case cmd.Is("*IDN") && cmd.Query:
		return scpi.FormatIdentity(in.identity), true
	case cmd.Is("*RST"):
		in.reset()
	case cmd.Is("SYSTem:REMote"):
		in.remote = true
	case cmd.Is("SYSTem:LOCal"):
		in.remote = false
	case cmd.Is("SYSTem:ERRor") && cmd.Query:
		return in.popError(), true
	case cmd.Is("INSTrument:SELect"):
		if cmd.Query {
			return in.selected.String(), true
		}
		in.selectChannel(cmd.Args)
	case cmd.Is("CHANnel:OUTPut"):
		if cmd.Query {
			return boolResponse(in.outputs[in.selected-1].on), true
		}
		in.setOutput(cmd.Args)
	case cmd.Is("APPLy"):
		if cmd.Query {
			o := in.outputs[in.selected-1]
			return fmt.Sprintf("%s,%s", scpi.FormatFloat(o.voltage), scpi.FormatFloat(o.current)), true
		}
		in.apply(cmd.Args)
	case cmd.Is("MEASure:VOLTage") && cmd.Query:
		if ch, ok := in.target(cmd.Args); ok {
			v, _ := in.reading(ch)
			return scpi.FormatFloat(v), true
		}
		return "", false
	case cmd.Is("MEASure:CURRent") && cmd.Query:
		if ch, ok := in.target(cmd.Args); ok {
			_, i := in.reading(ch)
			return scpi.FormatFloat(i), true
		}
		return "", false
	default:
		in.pushError(errUndefined)
	}
	return "", false
}

// SyntaxError 记录一条无法解析的命令
func (in *Instrument) SyntaxError() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.pushError(errSyntax)
}

func (in *Instrument) reset() {
	in.outputs = [3]output{}
	in.selected = protocol.CH1
	in.errors = nil
}

func (in *Instrument) selectChannel(args []string) {
	if len(args) != 1 {
		in.pushError(errMissingParam)
		return
	}
	ch, err := scpi.ParseChannel(args[0])
	if err != nil {
		in.pushError(errOutOfRange)
		return
	}
	in.selected = ch
}

func (in *Instrument) setOutput(args []string) {
	if len(args) != 1 {
		in.pushError(errMissingParam)
		return
	}
	st, err := scpi.ParseState(args[0])
	if err != nil {
		in.pushError(errSyntax)
		return
	}
	in.outputs[in.selected-1].on = bool(st)
}

func (in *Instrument) apply(args []string) {
	if len(args) != 3 {
		in.pushError(errMissingParam)
		return
	}
	ch, err := scpi.ParseChannel(args[0])
	if err != nil {
		in.pushError(errOutOfRange)
		return
	}
	v, errV := scpi.ParseFloat(args[1])
	i, errI := scpi.ParseFloat(args[2])
	if errV != nil || errI != nil {
		in.pushError(errSyntax)
		return
	}
	lim := in.limits[ch-1]
	if v < 0 || v > lim.voltage || i < 0 || i > lim.current {
		in.pushError(errOutOfRange)
		return
	}
	in.outputs[ch-1].voltage = v
	in.outputs[ch-1].current = i
}

func (in *Instrument) target(args []string) (protocol.Channel, bool) {
	if len(args) == 0 {
		return in.selected, true
	}
	ch, err := scpi.ParseChannel(args[0])
	if err != nil {
		in.pushError(errOutOfRange)
		return 0, false
	}
	return ch, true
}

// reading 恒压/恒流模型：电流受限时切换到恒流
func (in *Instrument) reading(ch protocol.Channel) (float32, float32) {
	o := in.outputs[ch-1]
	if !o.on {
		return 0, 0
	}
	if in.load <= 0 {
		return o.voltage, 0
	}
	i := o.voltage / in.load
	if i > o.current {
		return o.current * in.load, o.current
	}
	return o.voltage, i
}

func (in *Instrument) pushError(e string) {
	if len(in.errors) >= errQueueCapacity {
		return
	}
	in.errors = append(in.errors, e)
}

func (in *Instrument) popError() string {
	if len(in.errors) == 0 {
		return errNone
	}
	e := in.errors[0]
	in.errors = in.errors[1:]
	return e
}

func boolResponse(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
