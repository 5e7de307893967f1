// Package format 把字节数和速率转换成便于阅读的字符串
package format

import (
	"fmt"
	"math"
)

const unit = 1024

var units = [...]string{"KB", "MB", "GB", "TB", "PB", "EB"}

// ByteCount 格式化字节单位 (B -> KB -> MB ...)
// 小于 1024 时不带小数，其余保留两位
func ByteCount(b uint64) string {
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	v, exp := scale(float64(b) / unit)
	return fmt.Sprintf("%.2f %s", v, units[exp])
}

// Rate 格式化每秒速率，缩放规则和 ByteCount 一致。
// 不足 1 B/s 的非零速率保留两位小数，最少显示 0.01，不会显示成 0。
func Rate(r float64) string {
	if math.IsNaN(r) || r < 0 {
		r = 0
	}
	switch {
	case r == 0:
		return "0 B/s"
	case r < 1:
		return fmt.Sprintf("%.2f B/s", math.Max(r, 0.01))
	case math.Round(r) < unit:
		return fmt.Sprintf("%.0f B/s", r)
	}
	v, exp := scale(r / unit)
	return fmt.Sprintf("%.2f %s/s", v, units[exp])
}

// scale 从 KB 开始往上换单位，直到两位小数四舍五入后小于 1024
func scale(v float64) (float64, int) {
	exp := 0
	for exp < len(units)-1 && math.Round(v*100)/100 >= unit {
		v /= unit
		exp++
	}
	return v, exp
}
