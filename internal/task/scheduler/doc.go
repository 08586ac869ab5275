// Package scheduler decides when work fires: cron entries (daily refresh)
// and one-shot timers (signal warnings and deliveries). Execution is
// delegated to the task engine.
package scheduler
