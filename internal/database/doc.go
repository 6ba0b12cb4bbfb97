// Package database manages the connection pool for the history store.
//
// The monitor itself keeps no durable state; the pool serves the trade
// log writer, the allow-list lookup, and the history query layer.
package database
