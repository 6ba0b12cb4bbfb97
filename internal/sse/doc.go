// Package sse carries the live market-data stream in both directions:
// Hub serves it to downstream consumers over server-sent events, and
// Client consumes an upstream stream with shared-connection,
// reference-counted subscriptions.
package sse
