// Package audio holds the mono PCM segment type that flows through the
// speech pipeline, together with the playback and persistence backends.
package audio
