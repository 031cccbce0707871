// Package preflight provides readiness checks for the filesystem paths and
// remote services likevault depends on.
//
// These checks run in two contexts:
//   - The daemon runtime calls RunLocal before starting and logs failures.
//   - The CLI "likevault check" command runs RunAll, including the remote
//     Reddit and Telegram checks, and prints one line per result.
package preflight
