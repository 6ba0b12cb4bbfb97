// Package model defines core domain types shared across the monitor.
//
// Types here are plain data carriers with no behavior. Addresses are
// base58-encoded account keys (PDAs) used purely as stable identities.
package model
