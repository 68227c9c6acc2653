// Package ratelimit 提供对外部 API 的出站请求限速与重试能力。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"leukemialens-go/pkg/log"
)

// ErrRateLimitExceeded 表示在重试上限内始终被上游限流（HTTP 429）。
var ErrRateLimitExceeded = errors.New("rate limit exceeded after retries")

const (
	window               = time.Second
	defaultRetryAttempts = 3
)

// Limiter 维护一个滚动的一秒窗口计数，保证每秒出站请求数不超过上限。
// 窗口计数是整个管道中唯一的常驻可变状态；进程内必须共享同一个实例，
// 每次调用都新建会让上限形同虚设。并发触发（手动 + 定时）时由互斥锁保护。
type Limiter struct {
	mu            sync.Mutex
	maxPerSecond  int
	retryAttempts int
	windowStart   time.Time
	count         int

	// 测试中可替换，避免真实休眠
	now   func() time.Time
	sleep func(time.Duration)
}

// New 创建一个限速器，maxPerSecond 是每秒允许的最大请求数。
func New(maxPerSecond int) *Limiter {
	l := &Limiter{
		maxPerSecond:  maxPerSecond,
		retryAttempts: defaultRetryAttempts,
		now:           time.Now,
		sleep:         time.Sleep,
	}
	l.windowStart = l.now()
	log.Infof("[RateLimiter] 初始化完成: %d req/s, 重试上限 %d 次", maxPerSecond, defaultRetryAttempts)
	return l
}

// Acquire 阻塞调用方，直到再发出一个请求也不会超过速率上限。
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.windowStart)

	// 窗口已过期则重置
	if elapsed >= window {
		l.count = 0
		l.windowStart = now
		elapsed = 0
	}

	// 已达上限则等到下一个窗口
	if l.count >= l.maxPerSecond {
		wait := window - elapsed
		log.Debugf("[RateLimiter] 达到速率上限 (%d/%d)，等待 %v", l.count, l.maxPerSecond, wait)
		l.sleep(wait)
		l.count = 0
		l.windowStart = l.now()
	}

	l.count++
	return nil
}

// Do 包装 Acquire 与实际的 HTTP 调用。遇到限流响应（HTTP 429）或传输层错误时，
// 按 2^attempt 秒做指数退避重试（1s、2s、…），超过重试上限后：持续被限流返回
// ErrRateLimitExceeded，持续传输失败返回包装后的最后一个错误。
// 其余状态码（含非 2xx）原样返回，由调用方自行判断。
func (l *Limiter) Do(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := l.Acquire(ctx); err != nil {
			return nil, err
		}

		resp, err := fn()
		if err == nil && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		throttled := err == nil
		if throttled {
			// 重试前先读完并关闭响应体
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		if attempt >= l.retryAttempts-1 {
			if throttled {
				log.Errorf("[RateLimiter] 重试 %d 次后仍被限流，放弃", l.retryAttempts)
				return nil, ErrRateLimitExceeded
			}
			return nil, fmt.Errorf("请求在 %d 次重试后仍然失败: %w", l.retryAttempts, err)
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if throttled {
			log.Warnf("[RateLimiter] 收到 429 限流，退避 %v 后重试 (attempt %d/%d)", backoff, attempt+1, l.retryAttempts)
		} else {
			log.Warnf("[RateLimiter] 请求失败: %v，退避 %v 后重试 (attempt %d/%d)", err, backoff, attempt+1, l.retryAttempts)
		}
		l.sleep(backoff)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
