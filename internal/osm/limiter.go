package osm

import (
	"context"
	"sync"
	"time"
)

// 文档注释：每分钟固定窗口限流
// 背景：公共 Overpass 实例按来源 IP 限制请求频率；超出配额时阻塞到下一分钟窗口。
// 约束：capacity<=0 表示不限流；now 可替换以便测试。
type MinuteLimiter struct {
	capacity int
	used     int
	lastMin  int64
	mu       sync.Mutex
	now      func() time.Time
	poll     time.Duration
}

// NewMinuteLimiter 创建限流器
func NewMinuteLimiter(perMin int) *MinuteLimiter {
	return &MinuteLimiter{capacity: perMin, now: time.Now, poll: 250 * time.Millisecond}
}

func (ml *MinuteLimiter) allow() bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.capacity <= 0 {
		return true
	}
	nowMin := ml.now().Unix() / 60
	if ml.lastMin != nowMin {
		ml.lastMin = nowMin
		ml.used = 0
	}
	if ml.used < ml.capacity {
		ml.used++
		return true
	}
	return false
}

// Wait 阻塞直到获得配额或 ctx 结束
func (ml *MinuteLimiter) Wait(ctx context.Context) error {
	if ml == nil {
		return nil
	}
	for !ml.allow() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ml.poll):
		}
	}
	return nil
}
