package interview

import (
	"context"
	"strings"
	"unicode/utf8"
)

// HandleCandidateTurn records a candidate utterance. Partial turns only
// replace the buffered fragment; a final turn is appended to the transcript,
// forwarded to the engine, and, if the session was waiting on an answer,
// drives the follow-up or next-question decision.
func (s *Session) HandleCandidateTurn(ctx context.Context, turn CandidateTurn) error {
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return nil
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.State() == StateCreated {
		if err := s.connectLocked(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.state == StateClosed || s.state == StateFinalized {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	if !turn.IsFinal {
		if latest := s.partialSeq; turn.Seq > 0 && turn.Seq < latest {
			s.mu.Unlock()
			s.logger.Debug("ignoring stale partial", "seq", turn.Seq, "latest_seq", latest)
			return nil
		}
		s.partial = text
		if turn.Seq > 0 {
			s.partialSeq = turn.Seq
		}
		s.mu.Unlock()
		s.logger.Debug("buffered partial candidate response", "chars", len(text), "source", sourceOrUnspecified(turn.Source))
		return nil
	}

	if s.partial != "" && utf8.RuneCountInString(text) < utf8.RuneCountInString(s.partial) {
		text = s.partial
	}
	s.partial = ""
	s.partialSeq = 0

	words := len(strings.Fields(text))
	s.lastAnswerWords = words
	now := s.deps.Now().UTC()

	idx := s.cursor - 1
	if idx < 0 {
		idx = 0
	}
	if idx < len(s.questions) {
		s.history = append(s.history, Exchange{Question: s.questions[idx], Answer: text, WordCount: words})
	}

	meta := map[string]any{"word_count": words}
	if turn.Source != "" {
		meta["source"] = turn.Source
	}
	s.appendLocked(RoleCandidate, TimelineCandidateResponse, text, now, meta)

	hasStream := s.stream != nil
	decide := s.awaitingAnswer && !s.closingDispatched
	retry := false
	if decide {
		s.awaitingAnswer = false
		retry = s.retryQuestion
		s.retryQuestion = false
	}
	s.mu.Unlock()

	s.queue.Push(TranscriptEvent(RoleCandidate, text, now))
	s.logger.Debug("final candidate response", "source", sourceOrUnspecified(turn.Source), "words", words)

	if !hasStream {
		return nil
	}
	if err := s.send(ctx, text, true); err != nil {
		s.logger.Warn("failed to forward candidate response", "error", err)
	}

	if !decide {
		return nil
	}
	if retry {
		return s.sendNextQuestion(ctx)
	}
	if s.shouldFollowUp(words) {
		return s.sendFollowUp(ctx, text)
	}
	return s.sendNextQuestion(ctx)
}

func sourceOrUnspecified(source string) string {
	if source == "" {
		return "unspecified"
	}
	return source
}

// shouldFollowUp decides for the question just answered (cursor-1).
func (s *Session) shouldFollowUp(words int) bool {
	if !s.cfg.AllowFollowups {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.cursor - 1
	if idx < 0 || idx >= len(s.questions) {
		return false
	}
	if count := s.followups[idx]; count >= s.cfg.MaxFollowupsPerQuestion {
		s.logger.Debug("follow-up cap reached", "question", idx+1, "count", count)
		return false
	}
	if words < s.cfg.MinAnswerWords {
		s.logger.Info("answer too brief, sending follow-up", "words", words, "min_words", s.cfg.MinAnswerWords)
		return true
	}
	return false
}

func (s *Session) sendFollowUp(ctx context.Context, briefAnswer string) error {
	s.mu.Lock()
	if s.stream == nil || s.closingDispatched {
		s.mu.Unlock()
		return nil
	}
	idx := s.cursor - 1
	if idx < 0 || idx >= len(s.questions) {
		s.mu.Unlock()
		return nil
	}
	question := s.questions[idx]
	s.followups[idx]++
	attempt := s.followups[idx]
	s.mu.Unlock()

	s.logger.Debug("sending follow-up", "question", idx+1, "attempt", attempt)
	if err := s.send(ctx, followupPrompt(question, briefAnswer), true); err != nil {
		s.logger.Warn("failed to send follow-up", "error", err)
		// The next final answer runs the decision again.
		s.mu.Lock()
		s.followups[idx]--
		s.awaitingAnswer = true
		s.mu.Unlock()
		return err
	}

	text := followupText(question)
	now := s.deps.Now().UTC()
	s.mu.Lock()
	s.appendLocked(RoleAssistant, TimelineFollowupSent, text, now, map[string]any{
		"original_question": question,
		"brief_answer":      briefAnswer,
		"index":             idx + 1,
	})
	s.awaitingAnswer = true
	s.mu.Unlock()
	s.queue.Push(TranscriptEvent(RoleAssistant, text, now))
	return nil
}

// sendNextQuestion dispatches questions[cursor], or the closing statement once
// the list is exhausted.
func (s *Session) sendNextQuestion(ctx context.Context) error {
	s.mu.Lock()
	if s.stream == nil || s.closingDispatched || s.awaitingAnswer || s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	if s.cursor >= len(s.questions) {
		s.mu.Unlock()
		return s.sendClosingStatement(ctx)
	}
	idx := s.cursor
	question := s.questions[idx]
	total := len(s.questions)
	s.mu.Unlock()

	s.logger.Debug("dispatching question", "index", idx+1, "total", total)
	if err := s.send(ctx, questionPrompt(question, idx == 0, s.appCtx.CandidateName), true); err != nil {
		s.logger.Warn("failed to dispatch question", "index", idx+1, "error", err)
		s.mu.Lock()
		s.awaitingAnswer = true
		s.retryQuestion = true
		s.mu.Unlock()
		return err
	}

	now := s.deps.Now().UTC()
	s.mu.Lock()
	s.awaitingAnswer = true
	s.cursor = idx + 1
	s.appendLocked(RoleAssistant, TimelineQuestion, question, now, map[string]any{"index": idx + 1})
	s.mu.Unlock()
	s.queue.Push(TranscriptEvent(RoleAssistant, question, now))
	return nil
}

// sendClosingStatement runs at most once. It schedules the finalize_ready
// signal and the auto-close even when the engine send fails.
func (s *Session) sendClosingStatement(ctx context.Context) error {
	s.mu.Lock()
	if s.stream == nil || s.closingDispatched {
		s.mu.Unlock()
		return nil
	}
	s.closingDispatched = true
	s.awaitingAnswer = false
	if s.state == StateActive {
		s.state = StateClosing
	}
	s.mu.Unlock()

	s.logger.Debug("sending closing remarks")
	err := s.send(ctx, closingPrompt, true)
	if err != nil {
		s.logger.Warn("failed to send closing remarks", "error", err)
	} else {
		now := s.deps.Now().UTC()
		s.mu.Lock()
		s.appendLocked(RoleAssistant, TimelineClosing, closingText, now, nil)
		s.mu.Unlock()
		s.queue.Push(TranscriptEvent(RoleAssistant, closingText, now))
	}

	s.scheduleWrapUp()
	return err
}

// scheduleWrapUp emits finalize_ready after the grace delay, then closes the
// session after the auto-close delay unless it was closed first.
func (s *Session) scheduleWrapUp() {
	s.timerWG.Add(1)
	go func() {
		defer s.timerWG.Done()
		if !s.sleep(s.cfg.FinalizeGrace) {
			return
		}
		s.mu.Lock()
		send := !s.finalizeSignalSent
		s.finalizeSignalSent = true
		s.mu.Unlock()
		if send {
			s.queue.Push(StatusEvent(StatusFinalizeReady, s.id))
			s.logger.Debug("notified clients to finalize")
		}

		if !s.sleep(s.cfg.AutoCloseDelay) {
			return
		}
		s.logger.Info("auto-closing session after delay", "delay", s.cfg.AutoCloseDelay)
		s.close(false)
	}()
}
