// Package scheduler runs fetch cycles on wall-clock quarter hours.
//
// The Scheduler is either Idle or Armed. Start arms a single timer for the
// next boundary (:00, :15, :30, :45); each tick runs one cycle and re-arms
// with a freshly computed boundary, so drift never accumulates. Stop runs
// one final cycle, flushing the partial interval, before going Idle.
//
// A cycle mutex serialises tick cycles and the final cycle of Stop: a Stop
// that arrives during a tick waits for it, and two concurrent Stops run
// exactly one final cycle between them.
//
// The Refresher re-reads the active meters into the registry on a cron
// schedule, independently of the quarter-hour ticks.
package scheduler
