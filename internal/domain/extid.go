package domain

// 外部订单号是不透明字符串：相等性/查找永远用原始字符串。
// 但游标推进和"更新的订单"判断需要数值序，而上游存在掺杂了
// 非数字前后缀的订单号（如 "ORD-10023"、"10023-B"），直接
// strconv.Atoi 会失败。这里提供唯一的、经过测试的数值核提取函数，
// 所有排序/比较必须经过它。

// ExternalIDNumber 提取外部订单号的数值核
// 取字符串中第一段连续数字；没有数字时返回 (0, false)。
func ExternalIDNumber(s string) (int64, bool) {
	var n int64
	found := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			if found {
				break
			}
			continue
		}
		found = true
		// 上游订单号远小于 int64 上限，这里不做溢出保护
		n = n*10 + int64(c-'0')
	}
	return n, found
}

// CompareExternalIDs 按数值核比较两个外部订单号
// 返回 -1/0/1；无数值核的一侧视为最小。
func CompareExternalIDs(a, b string) int {
	an, aok := ExternalIDNumber(a)
	bn, bok := ExternalIDNumber(b)
	if !aok && !bok {
		return 0
	}
	if !aok {
		return -1
	}
	if !bok {
		return 1
	}
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	}
	return 0
}
