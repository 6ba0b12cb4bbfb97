// Package decode turns raw program log lines into typed domain events.
//
// Program events are emitted as "Program data: <base64>" log lines whose
// payload starts with an 8-byte event discriminator followed by
// little-endian fields. Lines that do not carry a known event are
// skipped without error; this is the common case for almost every
// transaction, so the miss path is a prefix check and the skips are
// counted rather than logged.
package decode
