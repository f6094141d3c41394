// Package internal holds packages private to tokenauth.
//
// # Sub-packages
//
//   - flows: flow orchestrators for every Engine operation, driven by
//     injected dependency funcs
//   - sweep: cron scheduling of the expired refresh-token sweep
package internal
