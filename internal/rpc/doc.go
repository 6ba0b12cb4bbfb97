// Package rpc reads program accounts over Solana JSON-RPC HTTP.
//
// The monitor's enrichment pipeline uses it for the dependent reads that
// follow a proposal launch: the proposal account itself, its moderator,
// and the moderator's DAO. A missing DAO account is a normal outcome
// (ErrNotFound), not an error.
package rpc
