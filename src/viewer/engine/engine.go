// Package engine is the discussion merge engine: one pure reducer that
// folds snapshot loads, channel events and confirmed local writes into the
// next tree. Events may arrive duplicated or out of order; the reducer is
// idempotent on entity ids and buffers updates whose target has not been
// inserted yet.
package engine

import (
	"maps"
	"slices"

	"github.com/orbitlearn/discussions/src/shared/discussion"
)

// Action is one input to the reducer.
type Action interface {
	isAction()
}

// SnapshotLoaded replaces the whole tree with an authoritative fetch.
type SnapshotLoaded struct {
	Snapshot discussion.Snapshot
}

// AnswerAdded inserts an answer at the head of the list (most recent first).
type AnswerAdded struct {
	Answer discussion.Answer
}

// ReplyAdded appends a reply to its answer.
type ReplyAdded struct {
	AnswerID uint64
	Reply    discussion.Reply
}

// BestAnswerMarked designates the single winning answer.
type BestAnswerMarked struct {
	AnswerID uint64
}

// VoteCountUpdated carries an authoritative count; counts are never
// computed locally.
type VoteCountUpdated struct {
	Target    discussion.TargetRef
	VoteCount int
}

func (SnapshotLoaded) isAction()   {}
func (AnswerAdded) isAction()      {}
func (ReplyAdded) isAction()       {}
func (BestAnswerMarked) isAction() {}
func (VoteCountUpdated) isAction() {}

// State is the merged discussion tree plus the buffers that make the
// reducer order-tolerant. Treat it as immutable: Reduce never modifies its
// input and returns a structurally shared copy.
type State struct {
	Discussion discussion.Discussion
	Answers    []discussion.Answer

	answerIDs map[uint64]struct{} // answers present in the tree
	replyIDs  map[uint64]uint64   // reply id -> owning answer id

	// Updates that arrived before their target entity. Replayed on insert,
	// cleared wholesale by the next snapshot.
	pendingVotes   map[discussion.TargetRef]int
	pendingReplies map[uint64][]discussion.Reply
	pendingBest    uint64 // 0 = none
}

// FromSnapshot seeds a fresh state from an authoritative fetch.
func FromSnapshot(snap discussion.Snapshot) State {
	s := State{
		Discussion: snap.Discussion,
		Answers:    slices.Clone(snap.Answers),
		answerIDs:  make(map[uint64]struct{}, len(snap.Answers)),
		replyIDs:   make(map[uint64]uint64),
	}
	for i := range s.Answers {
		s.Answers[i].Replies = slices.Clone(s.Answers[i].Replies)
		s.answerIDs[s.Answers[i].ID] = struct{}{}
		for _, r := range s.Answers[i].Replies {
			s.replyIDs[r.ID] = s.Answers[i].ID
		}
	}
	return s
}

// Reduce applies one action and returns the next state. It is total: any
// action on any well-typed state returns a state, never panics.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SnapshotLoaded:
		return FromSnapshot(a.Snapshot)
	case AnswerAdded:
		return s.addAnswer(a.Answer)
	case ReplyAdded:
		return s.addReply(a.AnswerID, a.Reply)
	case BestAnswerMarked:
		return s.markBest(a.AnswerID)
	case VoteCountUpdated:
		return s.setVoteCount(a.Target, a.VoteCount)
	}
	return s
}

// HasAnswer reports id membership in O(1).
func (s State) HasAnswer(id uint64) bool {
	_, ok := s.answerIDs[id]
	return ok
}

// HasReply reports id membership in O(1).
func (s State) HasReply(id uint64) bool {
	_, ok := s.replyIDs[id]
	return ok
}

// Tree returns a deep copy safe to hand to the view layer.
func (s State) Tree() discussion.Snapshot {
	answers := slices.Clone(s.Answers)
	for i := range answers {
		answers[i].Replies = slices.Clone(answers[i].Replies)
	}
	return discussion.Snapshot{Discussion: s.Discussion, Answers: answers}
}

func (s State) addAnswer(a discussion.Answer) State {
	if s.HasAnswer(a.ID) {
		return s
	}
	a.Replies = slices.Clone(a.Replies)

	// Replay replies that arrived ahead of this answer.
	for _, r := range s.pendingReplies[a.ID] {
		if !containsReply(a.Replies, r.ID) {
			a.Replies = append(a.Replies, r)
		}
	}
	if n, ok := s.pendingVotes[discussion.TargetRef{Type: discussion.TargetAnswer, ID: a.ID}]; ok {
		a.VoteCount = n
	}
	for i := range a.Replies {
		if n, ok := s.pendingVotes[discussion.TargetRef{Type: discussion.TargetReply, ID: a.Replies[i].ID}]; ok {
			a.Replies[i].VoteCount = n
		}
	}

	answers := make([]discussion.Answer, 0, len(s.Answers)+1)
	answers = append(answers, a)
	answers = append(answers, s.Answers...)
	s.Answers = answers

	s.answerIDs = cloneWith(s.answerIDs, a.ID, struct{}{})
	s.replyIDs = maps.Clone(ensure(s.replyIDs))
	for _, r := range a.Replies {
		s.replyIDs[r.ID] = a.ID
	}
	s = s.dropPendingFor(a)

	if s.pendingBest == a.ID {
		s.pendingBest = 0
		s = s.markBest(a.ID)
	}
	return s
}

func (s State) addReply(answerID uint64, r discussion.Reply) State {
	if s.HasReply(r.ID) {
		return s
	}
	if !s.HasAnswer(answerID) {
		// Buffer until new_answer shows up.
		pending := maps.Clone(ensure(s.pendingReplies))
		if containsReply(pending[answerID], r.ID) {
			return s
		}
		pending[answerID] = append(slices.Clone(pending[answerID]), r)
		s.pendingReplies = pending
		return s
	}
	if n, ok := s.pendingVotes[discussion.TargetRef{Type: discussion.TargetReply, ID: r.ID}]; ok {
		r.VoteCount = n
		votes := maps.Clone(s.pendingVotes)
		delete(votes, discussion.TargetRef{Type: discussion.TargetReply, ID: r.ID})
		s.pendingVotes = votes
	}

	answers := slices.Clone(s.Answers)
	for i := range answers {
		if answers[i].ID == answerID {
			answers[i].Replies = append(slices.Clone(answers[i].Replies), r)
			break
		}
	}
	s.Answers = answers
	s.replyIDs = cloneWith(s.replyIDs, r.ID, answerID)
	return s
}

func (s State) markBest(answerID uint64) State {
	if s.Discussion.HasBestAnswer {
		// Best answer is monotonic for the session: later marks for a
		// different answer are no-ops.
		return s
	}
	if !s.HasAnswer(answerID) {
		if s.pendingBest == 0 {
			s.pendingBest = answerID
		}
		return s
	}
	answers := slices.Clone(s.Answers)
	for i := range answers {
		answers[i].IsBestAnswer = answers[i].ID == answerID
	}
	s.Answers = answers
	s.Discussion.HasBestAnswer = true
	s.pendingBest = 0
	return s
}

func (s State) setVoteCount(t discussion.TargetRef, n int) State {
	switch t.Type {
	case discussion.TargetDiscussion:
		if t.ID == s.Discussion.ID {
			s.Discussion.VoteCount = n
		}
		return s
	case discussion.TargetAnswer:
		if !s.HasAnswer(t.ID) {
			s.pendingVotes = cloneWith(s.pendingVotes, t, n)
			return s
		}
		answers := slices.Clone(s.Answers)
		for i := range answers {
			if answers[i].ID == t.ID {
				answers[i].VoteCount = n
				break
			}
		}
		s.Answers = answers
		return s
	case discussion.TargetReply:
		answerID, ok := s.replyIDs[t.ID]
		if !ok {
			s.pendingVotes = cloneWith(s.pendingVotes, t, n)
			return s
		}
		answers := slices.Clone(s.Answers)
		for i := range answers {
			if answers[i].ID != answerID {
				continue
			}
			replies := slices.Clone(answers[i].Replies)
			for j := range replies {
				if replies[j].ID == t.ID {
					replies[j].VoteCount = n
					break
				}
			}
			answers[i].Replies = replies
			break
		}
		s.Answers = answers
		return s
	}
	return s
}

func (s State) dropPendingFor(a discussion.Answer) State {
	if len(s.pendingReplies[a.ID]) > 0 {
		pending := maps.Clone(s.pendingReplies)
		delete(pending, a.ID)
		s.pendingReplies = pending
	}
	consumed := []discussion.TargetRef{{Type: discussion.TargetAnswer, ID: a.ID}}
	for _, r := range a.Replies {
		consumed = append(consumed, discussion.TargetRef{Type: discussion.TargetReply, ID: r.ID})
	}
	var votes map[discussion.TargetRef]int
	for _, ref := range consumed {
		if _, ok := s.pendingVotes[ref]; ok {
			if votes == nil {
				votes = maps.Clone(s.pendingVotes)
			}
			delete(votes, ref)
		}
	}
	if votes != nil {
		s.pendingVotes = votes
	}
	return s
}

func containsReply(replies []discussion.Reply, id uint64) bool {
	for _, r := range replies {
		if r.ID == id {
			return true
		}
	}
	return false
}

func ensure[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return m
}

func cloneWith[K comparable, V any](m map[K]V, k K, v V) map[K]V {
	out := maps.Clone(ensure(m))
	out[k] = v
	return out
}
