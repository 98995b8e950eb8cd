package channel

// Bank 五个逻辑通道的完整期望状态。值类型，可直接复制。
type Bank struct {
	channels [count]Channel

	// LastComposite 最近一次被打开的复合模式，未设置时为 0
	LastComposite ID
}

// NewBank 使用默认安全范围创建通道组，所有通道关闭，设定值为 0
func NewBank() Bank {
	return NewBankWithBounds(nil)
}

// NewBankWithBounds 使用覆盖的安全范围创建通道组，未覆盖的通道使用默认值。
// 初始设定值取各范围的下限，保证设定值始终在范围内。
func NewBankWithBounds(overrides map[ID]Bounds) Bank {
	var b Bank
	for _, id := range IDs {
		bounds := DefaultBounds(id)
		if o, ok := overrides[id]; ok {
			bounds = o
		}
		b.channels[id-1] = Channel{
			ID:       id,
			Bounds:   bounds,
			Setpoint: Setpoint{Voltage: bounds.Voltage.Min, Current: bounds.Current.Min},
		}
	}
	return b
}

// Get 返回通道的可写引用，未知通道返回 nil
func (b *Bank) Get(id ID) *Channel {
	if !id.Valid() {
		return nil
	}
	return &b.channels[id-1]
}

// Enabled 通道是否使能
func (b *Bank) Enabled(id ID) bool {
	if c := b.Get(id); c != nil {
		return c.Enabled
	}
	return false
}

// CompositeActive 串联或并联是否使能
func (b *Bank) CompositeActive() bool {
	return b.Enabled(Series) || b.Enabled(Parallel)
}

// Editable 设定值是否可编辑：输出打开时不可编辑，
// 复合模式使能时 CH1/CH2 整体不可编辑
func (b *Bank) Editable(id ID) bool {
	if !id.Valid() || b.Enabled(id) {
		return false
	}
	if (id == CH1 || id == CH2) && b.CompositeActive() {
		return false
	}
	return true
}

// Channels 按显示顺序返回所有通道的副本
func (b *Bank) Channels() []Channel {
	out := make([]Channel, 0, count)
	out = append(out, b.channels[:]...)
	return out
}
