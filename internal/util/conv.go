package util

import (
	"strconv"
	"strings"
)

// QueryInt 解析查询参数中的整数，为空或格式错误时返回 def
func QueryInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
