// Package quota decides whether a download may write to local storage.
//
// Guard compares the durable disk counter plus bytes reserved by in-flight
// downloads against the configured budget. Admission hands out a Reservation
// that must be released once the download finished, so concurrent workers
// can never jointly overshoot the budget for downloads whose size is known.
package quota
