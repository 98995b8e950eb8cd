package channel

// Label 使能按钮的文字，在渲染时由 enabled 推导
func Label(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}

// Color 使能按钮的颜色，在渲染时由 enabled 推导
func Color(enabled bool) string {
	if enabled {
		return "green"
	}
	return "red"
}
