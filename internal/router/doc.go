// Package router implements the gateway decision path for an authenticated
// identity: admission through the rate limiter, then a single bounded pass
// over the healthy backends with failover.
//
// A pass makes at most k forward attempts, where k is the number of healthy
// backends observed when the pass starts. The first attempt that returns a
// 2xx JSON body wins and is counted under the backend's address; every
// other outcome is logged, recorded as an attempt failure and skipped.
package router
