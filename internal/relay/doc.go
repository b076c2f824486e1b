// Package relay buffers media albums that arrive as separate updates and
// forwards each album to the destination chat once it has gone quiet.
//
// Flow: Classifier -> ResolveKey -> Store.AppendOrCreate -> Scheduler.Reschedule
// -> (quiet period) -> Dispatcher.Flush -> MediaSender. The Sweeper evicts
// groups whose timer was lost.
//
// Buffers are in-memory only; pending albums are dropped on restart.
package relay
