// Package fetch downloads media files into local storage.
//
// Downloads stream into a temporary ".part" file that is renamed only once
// the body completed, so a crashed or canceled transfer never leaves a file
// that looks finished. The per-file cap is enforced both against
// Content-Length and while streaming. Errors carry services markers so the
// retry coordinator can tell transient failures from permanent ones.
package fetch
