// Package stream speaks text as it arrives. A TokenSource yields text
// deltas, a Speaker cuts them into sentences and feeds a pipeline session.
package stream
