// Package notifier is the asynchronous delivery pipeline.
//
// Producers call Submit, which never blocks: the rendered message goes into a
// bounded FIFO queue or is dropped when the queue is full. A single worker
// goroutine wakes on a fixed tick, takes up to batch_per_tick messages and
// hands each to the delivery sender, whose retry backoff runs inside the
// tick. Ticks never overlap.
//
// # Shutdown
//
// Stop ends the tick loop without interrupting the tick in flight, then
// drains at most drain_limit messages with single attempts. Cancelling the
// run context passed to Start is what interrupts an in-flight backoff.
package notifier
