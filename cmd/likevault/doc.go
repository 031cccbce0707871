// Command likevault runs the archiving daemon and talks to it over the
// local IPC socket.
//
// `likevault run` hosts the daemon in the foreground. The remaining commands
// (status, stats, items, fetch, start, stop, test-notify) dial the socket of
// a running daemon, while `config` and `check` work from the configuration
// file alone.
package main
