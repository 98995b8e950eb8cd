package policy

import "psu-controller/internal/channel"

// Resolve 返回满足互斥规则的通道状态。纯函数，幂等，不会失败。
//
// 复合模式总是优先于它占用的 CH1/CH2；串联与并联同时使能时，
// 最近一次打开的一方保留（无记录时保留串联）。CH3 不受影响。
func Resolve(b channel.Bank) channel.Bank {
	series, parallel := b.Get(channel.Series), b.Get(channel.Parallel)
	if series.Enabled && parallel.Enabled {
		if b.LastComposite == channel.Parallel {
			series.Enabled = false
		} else {
			parallel.Enabled = false
		}
	}

	if b.CompositeActive() {
		b.Get(channel.CH1).Enabled = false
		b.Get(channel.CH2).Enabled = false
	}
	return b
}

// Toggle 在操作点执行互斥规则的翻转：
//   - 复合模式使能时打开 CH1/CH2 的请求被忽略
//   - 打开串联会立即关闭并联，反之亦然
//
// 返回翻转是否生效。
func Toggle(b *channel.Bank, id channel.ID) bool {
	ch := b.Get(id)
	if ch == nil {
		return false
	}

	switch id {
	case channel.CH1, channel.CH2:
		if !ch.Enabled && b.CompositeActive() {
			return false
		}
		ch.Toggle()
	case channel.Series, channel.Parallel:
		ch.Toggle()
		if ch.Enabled {
			b.Get(other(id)).Enabled = false
			b.LastComposite = id
		} else if b.LastComposite == id {
			b.LastComposite = 0
		}
	default:
		ch.Toggle()
	}

	*b = Resolve(*b)
	return true
}

func other(id channel.ID) channel.ID {
	if id == channel.Series {
		return channel.Parallel
	}
	return channel.Series
}
