package pipeline

import (
	"context"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/queue"
	"github.com/dgnsrekt/speakstream/internal/synth"
)

func (c *Controller) synthesisWorker(s *session) {
	defer close(s.synthDone)
	defer c.recoverPanic(s, "synthesis")

	for {
		j, kind := s.dispatch.Pop(c.cfg.PollInterval)
		switch kind {
		case queue.KindTimeout:
			if s.ctx.Err() != nil {
				return
			}
			continue
		case queue.KindClosed:
			return
		case queue.KindTerminator:
			s.dispatch.Done()
			return
		}

		c.synthesize(s, j)
		s.dispatch.Done()
	}
}

func (c *Controller) synthesize(s *session, j job) {
	ctx, cancel := context.WithTimeout(s.ctx, c.cfg.SynthesisTimeout)
	start := time.Now()
	seg, err := c.synth.Synthesize(ctx, j.text, c.cfg.Voice)
	cancel()
	elapsed := time.Since(start)

	if err == nil && seg.Len() == 0 {
		err = synth.ErrEmptyAudio
	}
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		f := SynthesisFailure{Index: j.index, Text: j.text, Err: err}
		s.synthesisFailed(f)
		c.logger.Warn("Synthesis failed; skipping sentence", "index", j.index, "text", preview(j.text), "err", err)
		s.emit(Event{Type: EventSynthesisFailed, Index: j.index, Text: j.text, Err: &f, Elapsed: elapsed})
		return
	}

	pad := audio.Silence(c.cfg.SilencePadding, seg.SampleRate)
	s.accumulate(seg, pad)

	c.logger.Debug("Synthesized sentence", "index", j.index, "audio", seg.Duration().Round(time.Millisecond), "took", elapsed.Round(time.Millisecond))
	s.emit(Event{Type: EventAudioReady, Index: j.index, Text: j.text, Audio: seg.Clone(), Elapsed: elapsed})

	if err := s.playback.Push(clip{index: j.index, seg: seg}); err != nil {
		return
	}
	if pad.Len() > 0 {
		_ = s.playback.Push(clip{index: j.index, seg: pad, pad: true})
	}
}

func (c *Controller) playbackWorker(s *session) {
	defer close(s.playDone)
	defer c.recoverPanic(s, "playback")

	for {
		cl, kind := s.playback.Pop(c.cfg.PollInterval)
		switch kind {
		case queue.KindTimeout:
			if s.ctx.Err() != nil {
				return
			}
			continue
		case queue.KindClosed:
			return
		case queue.KindTerminator:
			s.playback.Done()
			return
		}

		c.play(s, cl)
		s.playback.Done()
	}
}

func (c *Controller) play(s *session, cl clip) {
	if cl.seg.Len() == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, cl.seg.Duration()+c.cfg.PlaybackSlack)
	start := time.Now()
	err := c.player.Play(ctx, cl.seg)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.playbackFailed()
		c.logger.Warn("Playback failed", "index", cl.index, "err", err)
		s.emit(Event{Type: EventPlaybackFailed, Index: cl.index, Err: &PlaybackFailure{Index: cl.index, Err: err}, Elapsed: elapsed})
		return
	}
	if !cl.pad {
		s.emit(Event{Type: EventPlayed, Index: cl.index, Elapsed: elapsed})
	}
}

// preview shortens text for log lines.
func preview(text string) string {
	return runewidth.Truncate(text, 48, "…")
}
