// Package server hosts the Fiber HTTP service, the request middleware chain
// and the shared upstream HTTP client. Page handling lives in the proxy
// package and diagnostics endpoints in server/routes; both are injected so
// this package keeps no dependency on the cache engine.
package server
