package app

import "time"

// TimerScheduler is the production Scheduler: a one-shot timer per deferred
// call. The callback must be idempotent — it can race the webhook-driven
// confirmation for the same reference, and the pending record's atomic claim
// is what keeps that race harmless.
type TimerScheduler struct{}

// NewTimerScheduler creates a TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

// Schedule runs fn once after delay.
func (s *TimerScheduler) Schedule(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}
