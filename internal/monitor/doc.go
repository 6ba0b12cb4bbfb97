// Package monitor tracks live futarchy proposals.
//
// The monitor consumes decoded program events. A proposal launch runs
// through an enrichment pipeline (account read, moderator
// authorization, optional DAO resolution, pool verification) before the
// proposal enters the tracked set; a finalization removes it. Swaps on
// tracked conditional pools are attributed to their proposal and market
// index and published on the bus. A periodic reconcile scan picks up
// launches missed while the log stream was down.
package monitor
