// Package signal plans, schedules and delivers the daily trading-signal
// broadcasts.
//
// Each day a random number of delivery instants is drawn inside the
// configured working-hour window. Every instant gets a linked pair of
// one-shot timers: a warning broadcast ten seconds ahead and the delivery
// itself. A manual trigger consumes one unit of the day's quota by
// cancelling the latest pending pair and delivering immediately.
//
// All day state lives in memory and is rebuilt at startup and shortly after
// midnight in the reference zone.
package signal
