package transport

import (
	"time"
)

// Scheduler 延迟执行 f，返回的函数用于取消
type Scheduler func(d time.Duration, f func()) (cancel func())

// AfterFunc 基于 time.AfterFunc 的默认调度器
func AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Backoff 第 attempt 次（从 0 计）重连前的等待时间：min(base·2^attempt, maxDelay)
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 31 {
		return maxDelay
	}
	d := base << uint(attempt)
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// handleClosed 连接关闭（含拨号失败）：停止心跳，回调关闭码，按退避策略安排重连
func (c *Client) handleClosed(gen uint64, code int) {
	c.mu.Lock()
	if gen != c.gen {
		// 已被 Disconnect 或更新的连接取代
		c.mu.Unlock()
		return
	}
	c.state = stateIdle
	c.conn = nil
	c.stopConnLocked()

	if c.shouldReconnect && c.attempts < c.maxAttempts {
		delay := Backoff(c.attempts, c.baseDelay, c.maxDelay)
		c.log.Debug().Int("code", code).Int("attempt", c.attempts+1).Dur("delay", delay).Msg("scheduling reconnect")
		c.cancelReconnect = c.schedule(delay, c.reconnect)
	} else if c.shouldReconnect {
		c.log.Warn().Int("attempts", c.attempts).Msg("reconnect attempts exhausted")
	}
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose(code)
	}
}

// reconnect 定时器触发：计数加一后重新连接
func (c *Client) reconnect() {
	c.mu.Lock()
	if !c.shouldReconnect || c.cancelReconnect == nil {
		c.mu.Unlock()
		return
	}
	c.cancelReconnect = nil
	c.attempts++
	c.mu.Unlock()

	c.Connect()
}
