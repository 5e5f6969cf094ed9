package cache

import (
	"fmt"
	"time"
)

// RateLimitKey buckets an agent's dispatches by the window containing t.
func RateLimitKey(agentType string, window time.Duration, t time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", agentType, t.Truncate(window).Unix())
}

func EventStreamKey(eventType string) string {
	return fmt.Sprintf("events:%s", eventType)
}
