// Package session runs one open discussion view: it seeds the merge engine
// from a snapshot, pumps channel events and confirmed local writes through
// the reducer on a single goroutine, and tracks typing presence. Teardown
// runs exactly once on every exit path; results of writes still in flight
// at teardown are discarded.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/orbitlearn/discussions/src/shared/discussion"
	"github.com/orbitlearn/discussions/src/viewer/client"
	"github.com/orbitlearn/discussions/src/viewer/engine"
	"github.com/orbitlearn/discussions/src/viewer/presence"
)

// Store is the authoritative store at its interface boundary.
type Store interface {
	FetchSnapshot(ctx context.Context, discussionID uint64) (discussion.Snapshot, error)
	SubmitAnswer(ctx context.Context, discussionID uint64, content string, images []string) (discussion.Answer, error)
	SubmitReply(ctx context.Context, answerID uint64, content string, images []string) (discussion.Reply, error)
	CastVote(ctx context.Context, target discussion.TargetRef, direction discussion.VoteDirection) (int, error)
	MarkBest(ctx context.Context, answerID uint64) error
}

// Subscription is a live membership of one discussion topic.
type Subscription interface {
	Events() <-chan discussion.Event
	Emit(ctx context.Context, ev discussion.Event) error
	Leave() error
}

// JoinFunc binds to a discussion topic. *channel.Bus's Join fits after a
// one-line wrap; tests plug in-process fakes.
type JoinFunc func(ctx context.Context, discussionID uint64) (Subscription, error)

// Config wires a session.
type Config struct {
	DiscussionID uint64
	LocalUser    discussion.Author
	Store        Store
	Join         JoinFunc
	// TypingWindow is the silence window for both remote expiry and the
	// local auto typing_stop. Zero means presence.DefaultWindow.
	TypingWindow time.Duration
	// OnChange, if set, fires after every visible change (tree or typing
	// set). Called from session goroutines; keep it cheap.
	OnChange func()
}

// Session is one open discussion view.
type Session struct {
	cfg     Config
	store   Store
	sub     Subscription
	tracker *presence.Tracker

	mu      sync.RWMutex
	state   engine.State
	lastErr string

	actions   chan engine.Action
	done      chan struct{}
	closeOnce sync.Once

	typingMu    sync.Mutex
	typingTimer *time.Timer
}

// Open fetches the snapshot, joins the topic and starts the merge loop.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	snap, err := cfg.Store.FetchSnapshot(ctx, cfg.DiscussionID)
	if err != nil {
		return nil, err
	}
	sub, err := cfg.Join(ctx, cfg.DiscussionID)
	if err != nil {
		return nil, fmt.Errorf("join discussion %d: %w", cfg.DiscussionID, err)
	}

	s := &Session{
		cfg:     cfg,
		store:   cfg.Store,
		sub:     sub,
		state:   engine.FromSnapshot(snap),
		actions: make(chan engine.Action, 16),
		done:    make(chan struct{}),
	}
	s.tracker = presence.New(cfg.LocalUser.ID, cfg.TypingWindow, cfg.OnChange)
	go s.run()
	return s, nil
}

// run owns the state: channel events, confirmed local writes and snapshot
// reloads are all serialized here.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.sub.Events():
			if !ok {
				return
			}
			s.handleEvent(ev)
		case a := <-s.actions:
			s.apply(a)
		}
	}
}

func (s *Session) handleEvent(ev discussion.Event) {
	switch ev := ev.(type) {
	case discussion.NewAnswerEvent:
		s.apply(engine.AnswerAdded{Answer: ev.Answer})
	case discussion.NewReplyEvent:
		s.apply(engine.ReplyAdded{AnswerID: ev.AnswerID, Reply: ev.Reply})
	case discussion.BestAnswerMarkedEvent:
		s.apply(engine.BestAnswerMarked{AnswerID: ev.AnswerID})
	case discussion.VoteCountUpdatedEvent:
		s.apply(engine.VoteCountUpdated{
			Target:    discussion.TargetRef{Type: ev.TargetType, ID: ev.TargetID},
			VoteCount: ev.VoteCount,
		})
	case discussion.TypingStartEvent:
		s.tracker.Start(ev.UserID, ev.Username)
	case discussion.TypingStopEvent:
		s.tracker.Stop(ev.UserID)
	}
}

func (s *Session) apply(a engine.Action) {
	s.mu.Lock()
	s.state = engine.Reduce(s.state, a)
	s.mu.Unlock()
	if s.cfg.OnChange != nil {
		s.cfg.OnChange()
	}
}

// enqueue hands a confirmed local write to the merge loop, unless the view
// has been torn down.
func (s *Session) enqueue(a engine.Action) {
	select {
	case s.actions <- a:
	case <-s.done:
	}
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Tree returns the current merged tree as a read-only copy.
func (s *Session) Tree() discussion.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Tree()
}

// TypingUsers returns the remote users currently typing.
func (s *Session) TypingUsers() map[uint64]string {
	return s.tracker.Typing()
}

// LastError returns the most recent action failure, retained until the
// next successful action or ClearError.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError dismisses the retained error message.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	return err
}

func (s *Session) succeed() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

// SubmitAnswer validates, writes to the store and, on success, merges the
// stored answer and republishes it for other viewers. The channel will
// usually redeliver it; the reducer's id check makes that harmless.
func (s *Session) SubmitAnswer(ctx context.Context, content string, images []string) (discussion.Answer, error) {
	if strings.TrimSpace(content) == "" {
		return discussion.Answer{}, s.fail(fmt.Errorf("%w: answer content is empty", client.ErrValidation))
	}
	ans, err := s.store.SubmitAnswer(ctx, s.cfg.DiscussionID, content, images)
	if err != nil {
		return discussion.Answer{}, s.fail(err)
	}
	if s.closed() {
		return ans, nil
	}
	s.enqueue(engine.AnswerAdded{Answer: ans})
	_ = s.sub.Emit(ctx, discussion.NewAnswerEvent{Answer: ans})
	s.succeed()
	return ans, nil
}

// SubmitReply is SubmitAnswer for a reply on one answer.
func (s *Session) SubmitReply(ctx context.Context, answerID uint64, content string, images []string) (discussion.Reply, error) {
	if strings.TrimSpace(content) == "" {
		return discussion.Reply{}, s.fail(fmt.Errorf("%w: reply content is empty", client.ErrValidation))
	}
	rep, err := s.store.SubmitReply(ctx, answerID, content, images)
	if err != nil {
		return discussion.Reply{}, s.fail(err)
	}
	if s.closed() {
		return rep, nil
	}
	s.enqueue(engine.ReplyAdded{AnswerID: answerID, Reply: rep})
	_ = s.sub.Emit(ctx, discussion.NewReplyEvent{AnswerID: answerID, Reply: rep})
	s.succeed()
	return rep, nil
}

// Vote writes a directional vote. The displayed count only moves when the
// store's authoritative count comes back (or is broadcast), so a rejected
// vote leaves the tree exactly as it was.
func (s *Session) Vote(ctx context.Context, target discussion.TargetRef, direction discussion.VoteDirection) (int, error) {
	count, err := s.store.CastVote(ctx, target, direction)
	if err != nil {
		return 0, s.fail(err)
	}
	if s.closed() {
		return count, nil
	}
	s.enqueue(engine.VoteCountUpdated{Target: target, VoteCount: count})
	_ = s.sub.Emit(ctx, discussion.VoteCountUpdatedEvent{
		TargetID:   target.ID,
		TargetType: target.Type,
		VoteCount:  count,
	})
	s.succeed()
	return count, nil
}

// MarkBest designates the best answer. The gate runs locally first: only
// the discussion author may mark, and only while no best answer exists.
func (s *Session) MarkBest(ctx context.Context, answerID uint64) error {
	s.mu.RLock()
	disc := s.state.Discussion
	s.mu.RUnlock()

	if s.cfg.LocalUser.ID != disc.AuthorID {
		return s.fail(fmt.Errorf("%w: only the discussion author can mark the best answer", client.ErrForbidden))
	}
	if disc.HasBestAnswer {
		return s.fail(fmt.Errorf("%w: a best answer is already chosen", client.ErrForbidden))
	}
	if err := s.store.MarkBest(ctx, answerID); err != nil {
		return s.fail(err)
	}
	if s.closed() {
		return nil
	}
	s.enqueue(engine.BestAnswerMarked{AnswerID: answerID})
	_ = s.sub.Emit(ctx, discussion.BestAnswerMarkedEvent{AnswerID: answerID})
	s.succeed()
	return nil
}

// Refresh replaces the tree with a fresh snapshot, reconciling anything a
// dropped or early event missed.
func (s *Session) Refresh(ctx context.Context) error {
	snap, err := s.store.FetchSnapshot(ctx, s.cfg.DiscussionID)
	if err != nil {
		return s.fail(err)
	}
	if s.closed() {
		return nil
	}
	s.enqueue(engine.SnapshotLoaded{Snapshot: snap})
	s.succeed()
	return nil
}

// StartTypingLocal broadcasts typing_start and (re)arms the local silence
// timer that auto-emits typing_stop. Call it on every content change that
// leaves the input non-empty.
func (s *Session) StartTypingLocal(ctx context.Context) {
	if s.closed() {
		return
	}
	_ = s.sub.Emit(ctx, discussion.TypingStartEvent{
		UserID:   s.cfg.LocalUser.ID,
		Username: s.cfg.LocalUser.Username,
	})
	window := s.cfg.TypingWindow
	if window <= 0 {
		window = presence.DefaultWindow
	}
	s.typingMu.Lock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(window, func() {
		s.StopTypingLocal(context.Background())
	})
	s.typingMu.Unlock()
}

// StopTypingLocal broadcasts typing_stop immediately and cancels the local
// silence timer. Call it when the input is cleared.
func (s *Session) StopTypingLocal(ctx context.Context) {
	s.typingMu.Lock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typingMu.Unlock()
	if s.closed() {
		return
	}
	_ = s.sub.Emit(ctx, discussion.TypingStopEvent{UserID: s.cfg.LocalUser.ID})
}

// Close tears the view down: leaves the topic, cancels timers and stops
// accepting merge input. Safe on every exit path; only the first call does
// work.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.typingMu.Lock()
		if s.typingTimer != nil {
			s.typingTimer.Stop()
			s.typingTimer = nil
		}
		s.typingMu.Unlock()

		// Best effort so other viewers don't wait out the silence window.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.sub.Emit(ctx, discussion.TypingStopEvent{UserID: s.cfg.LocalUser.ID})
		cancel()

		err = s.sub.Leave()
		s.tracker.Close()
	})
	return err
}
