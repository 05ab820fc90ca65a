package service

import "time"

// Clock 时钟抽象
// 调度器与限速抓取都通过它取时间/等待，测试用假时钟推进虚拟时间
// 而不是真实 sleep。
type Clock interface {
	Now() time.Time
	// After 在时长 d 后向返回的通道发送当前时间
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// NewRealClock 系统时钟
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
