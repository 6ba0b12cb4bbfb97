// Package chain subscribes to Solana program log streams over the
// JSON-RPC WebSocket endpoint.
//
// A Subscriber owns one Conn, issues logsSubscribe for each configured
// program at the configured commitment, filters out failed transactions,
// and emits one LogBundle per transaction notification. Dropped
// connections are re-dialed with exponential backoff and all
// subscriptions are re-issued.
package chain
