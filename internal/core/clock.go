package core

import "time"

// Clock supplies engine time. Every operation reads it once.
type Clock interface {
	Now() time.Time
}

// SystemClock is wall-clock time truncated to whole seconds.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().Truncate(time.Second) }
