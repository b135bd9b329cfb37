// Package pipeline turns sentences into ordered, gapless speech.
//
// A Controller owns one session at a time. Sentences pushed with
// AddSentence flow through a dispatch queue to a single synthesis worker,
// whose audio flows through a playback queue to a single playback worker.
// FinishAndSave drains both stages with a terminator, joins the workers and
// writes everything that was synthesized to one audio file.
package pipeline
