package util

// DateLabelFormat 超过一周的时间标签使用本地化的绝对日期
const DateLabelFormat = "02.01.2006"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
