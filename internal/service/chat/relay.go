package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/services"
	"aichat/internal/metrics"
)

// EventSink receives the client-facing event stream. The relay calls Start
// exactly once before any event, then Meta first, Delta per text increment,
// at most one Error, and Done last.
type EventSink interface {
	Start()
	Started() bool
	Meta(conversationID, assistantMessageID string)
	Delta(text string)
	Error(code, message string)
	Done()
}

// relayState tracks why the upstream call was aborted so the terminal
// status can be decided after the event loop ends. stopped (client gone)
// takes priority over error, which takes priority over completed.
type relayState struct {
	mu         sync.Mutex
	clientGone bool
	timedOut   bool
}

func (st *relayState) markClientGone() {
	st.mu.Lock()
	st.clientGone = true
	st.mu.Unlock()
}

func (st *relayState) markTimedOut() {
	st.mu.Lock()
	st.timedOut = true
	st.mu.Unlock()
}

func (st *relayState) snapshot() (clientGone, timedOut bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.clientGone, st.timedOut
}

// Stream runs one streaming chat turn against the sink. ctx is the inbound
// request context: its cancellation means the client is gone. An error
// return means the stream never opened and the caller still owns a
// non-streaming error response; once the sink has started, all failures are
// reported in-stream and Stream returns nil.
func (s *Service) Stream(ctx context.Context, user *models.User, req *Request, sink EventSink) error {
	turn, err := s.PrepareTurn(ctx, user, req, true)
	if err != nil {
		return err
	}

	provider, err := s.providerFor(turn.Model)
	if err != nil {
		return err
	}

	// The upstream call must outlive client cancellation just long enough
	// to be classified, so it hangs off an uncancelable parent and is
	// aborted explicitly.
	upstreamCtx, cancelUpstream := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelUpstream()

	state := &relayState{}
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			state.markClientGone()
			cancelUpstream()
		case <-watchDone:
		}
	}()

	events, err := provider.Stream(upstreamCtx, &services.GenerateRequest{
		Model:    turn.Model,
		Messages: turn.Messages,
	})
	if err != nil {
		coded := domain.AsError(err)
		s.finalize(ctx, turn, models.StatusError, &coded.Message, nil, "")
		return err
	}

	// The idle timer bounds silence on the upstream stream, not total
	// duration. It resets on every event received.
	idle := time.AfterFunc(s.cfg.ChatIdleTimeout, func() {
		state.markTimedOut()
		cancelUpstream()
	})
	defer idle.Stop()

	sink.Start()
	sink.Meta(turn.ConversationID, turn.AssistantMessageID)

	var fullText strings.Builder
	var authoritative *models.Usage
	var streamErr *domain.Error

	for ev := range events {
		idle.Reset(s.cfg.ChatIdleTimeout)

		if ev.Err != nil {
			clientGone, timedOut := state.snapshot()
			switch {
			case timedOut:
				streamErr = domain.Timeout("no data received from upstream, please retry")
			case clientGone:
				// Not an error: the reader was cancelled because the
				// client went away.
			case errors.As(ev.Err, &streamErr):
			default:
				streamErr = domain.StreamError("generation was interrupted, please retry")
			}
			break
		}

		if ev.TextDelta != "" {
			fullText.WriteString(ev.TextDelta)
			sink.Delta(ev.TextDelta)
		}
		if ev.Usage != nil {
			authoritative = ev.Usage
		}
	}

	idle.Stop()

	clientGone, timedOut := state.snapshot()
	if timedOut && streamErr == nil && !clientGone {
		// Timeout fired between the last event and channel close.
		streamErr = domain.Timeout("no data received from upstream, please retry")
	}

	status := models.StatusCompleted
	var errText *string
	var u *models.Usage
	switch {
	case clientGone:
		status = models.StatusStopped
		streamErr = nil
	case streamErr != nil:
		status = models.StatusError
		errText = &streamErr.Message
	default:
		u = s.resolveUsage(ctx, turn, authoritative, fullText.String())
	}

	s.finalize(ctx, turn, status, errText, u, fullText.String())

	if streamErr != nil {
		sink.Error(streamErr.ErrorCode(), streamErr.Message)
	}
	sink.Done()
	return nil
}

// finalize records the turn's terminal state. All writes are best-effort:
// a persistence failure is logged, never surfaced, so the client stream
// still terminates cleanly.
func (s *Service) finalize(ctx context.Context, turn *Turn, status string, errText *string, u *models.Usage, content string) {
	// Client disconnection must not abort the terminal write.
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.messages.Finalize(dbCtx, turn.AssistantMessageID, content, status, errText, u); err != nil {
		s.logger.Error("assistant message finalize failed",
			"message_id", turn.AssistantMessageID,
			"status", status,
			"error", err)
	}

	if err := s.conversations.Touch(dbCtx, turn.ConversationID); err != nil {
		s.logger.Warn("conversation touch failed",
			"conversation_id", turn.ConversationID,
			"error", err)
	}

	metrics.StreamsTotal.WithLabelValues(status).Inc()
	if u != nil {
		metrics.ObserveUsage(u.PromptTokens, u.CompletionTokens)
	}
}
