// Package schedule provides utilities for cron expression handling and deferred execution.
//
// Cron functions parse and validate the cron expressions attached to
// announcements and compute upcoming run times. RunAt executes a
// function asynchronously at a specified time.
package schedule
