// Package retry runs one fallible operation with bounded exponential backoff
// and escalating operator alerts.
//
// Operations report an explicit Outcome instead of panicking or relying on
// error inspection by the caller: Success ends the run, Failure schedules
// another attempt, and Fatal aborts immediately. Run returns a Result that
// records how the run ended and how many attempts it took.
//
// A run emits at most three alerts: a warning when the attempt numbered
// AlertAfter fails, a final alert when the last permitted attempt fails, and a
// recovery alert when an attempt numbered above AlertAfter succeeds.
package retry
