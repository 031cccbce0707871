// Package adminbot answers the operator's Telegram commands.
//
// The listener long-polls the Bot API for updates and serves /start, /status
// and /stats to the configured admin only. /stats replies with an inline
// keyboard whose buttons switch the reporting period in place.
package adminbot
