// Package cache keeps synthesized sentences so repeated text is not sent to
// the speech engine twice. It has an in-memory LRU tier (L1) in front of a
// zstd-compressed disk tier (L2) that survives restarts.
package cache
