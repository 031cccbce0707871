// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
//
// The CLI dials the socket to read status and statistics, list archived
// items, trigger an immediate fetch, pause or resume processing, and send a
// test notification.
package ipc
