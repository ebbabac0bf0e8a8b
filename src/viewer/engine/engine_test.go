package engine

import (
	"reflect"
	"testing"

	"github.com/orbitlearn/discussions/src/shared/discussion"
)

func testSnapshot() discussion.Snapshot {
	return discussion.Snapshot{
		Discussion: discussion.Discussion{
			ID: 1, Title: "How do goroutines leak?", AuthorID: 10, VoteCount: 4,
		},
		Answers: []discussion.Answer{
			{
				ID: 100, DiscussionID: 1, Content: "newest answer", AuthorID: 11, VoteCount: 2,
				Replies: []discussion.Reply{
					{ID: 1000, AnswerID: 100, Content: "first reply", AuthorID: 12},
				},
			},
			{ID: 99, DiscussionID: 1, Content: "older answer", AuthorID: 13, VoteCount: 7},
		},
	}
}

func answerIDs(s State) []uint64 {
	ids := make([]uint64, len(s.Answers))
	for i, a := range s.Answers {
		ids[i] = a.ID
	}
	return ids
}

func TestFromSnapshot(t *testing.T) {
	s := FromSnapshot(testSnapshot())
	if !s.HasAnswer(100) || !s.HasAnswer(99) || s.HasAnswer(42) {
		t.Fatalf("answer membership wrong: %v", answerIDs(s))
	}
	if !s.HasReply(1000) || s.HasReply(1) {
		t.Fatal("reply membership wrong")
	}
}

func TestAnswerAddedPrependsAndDeduplicates(t *testing.T) {
	s := FromSnapshot(testSnapshot())
	a := discussion.Answer{ID: 101, DiscussionID: 1, Content: "fresh", AuthorID: 14}

	s = Reduce(s, AnswerAdded{Answer: a})
	want := []uint64{101, 100, 99}
	if got := answerIDs(s); !reflect.DeepEqual(got, want) {
		t.Fatalf("answer order = %v, want %v", got, want)
	}

	// Local merge followed by the channel redelivery of the same answer.
	again := Reduce(s, AnswerAdded{Answer: a})
	if got := answerIDs(again); !reflect.DeepEqual(got, want) {
		t.Fatalf("duplicate changed order: %v", got)
	}
	if len(again.Answers) != 3 {
		t.Fatalf("duplicate inserted: %d answers", len(again.Answers))
	}
}

func TestReplyAddedAppendsAndDeduplicates(t *testing.T) {
	s := FromSnapshot(testSnapshot())
	r := discussion.Reply{ID: 1001, AnswerID: 100, Content: "second reply"}

	s = Reduce(s, ReplyAdded{AnswerID: 100, Reply: r})
	s = Reduce(s, ReplyAdded{AnswerID: 100, Reply: r})

	replies := s.Answers[0].Replies
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	if replies[0].ID != 1000 || replies[1].ID != 1001 {
		t.Fatalf("reply order wrong: %v then %v", replies[0].ID, replies[1].ID)
	}
}

func TestReplyBeforeAnswerIsBufferedAndReplayed(t *testing.T) {
	s := FromSnapshot(testSnapshot())
	r := discussion.Reply{ID: 2000, AnswerID: 200, Content: "early reply"}

	s = Reduce(s, ReplyAdded{AnswerID: 200, Reply: r})
	if s.HasReply(2000) {
		t.Fatal("buffered reply must not be visible yet")
	}
	if len(s.Answers) != 2 {
		t.Fatal("buffering must not touch the tree")
	}

	s = Reduce(s, AnswerAdded{Answer: discussion.Answer{ID: 200, DiscussionID: 1}})
	if !s.HasReply(2000) {
		t.Fatal("buffered reply not replayed on answer insert")
	}
	if got := s.Answers[0].Replies; len(got) != 1 || got[0].ID != 2000 {
		t.Fatalf("replayed replies = %+v", got)
	}
}

func TestBestAnswerMarkedIsMonotonic(t *testing.T) {
	s := FromSnapshot(testSnapshot())

	s = Reduce(s, BestAnswerMarked{AnswerID: 99})
	if !s.Discussion.HasBestAnswer {
		t.Fatal("HasBestAnswer not set")
	}
	if s.Answers[0].IsBestAnswer || !s.Answers[1].IsBestAnswer {
		t.Fatal("wrong answer flagged best")
	}

	// A later mark for a different answer must not steal the flag.
	s = Reduce(s, BestAnswerMarked{AnswerID: 100})
	if s.Answers[0].IsBestAnswer || !s.Answers[1].IsBestAnswer {
		t.Fatal("best answer moved after second mark")
	}
}

func TestBestAnswerForUnknownAnswerIsDeferred(t *testing.T) {
	s := FromSnapshot(testSnapshot())

	s = Reduce(s, BestAnswerMarked{AnswerID: 300})
	if s.Discussion.HasBestAnswer {
		t.Fatal("mark for absent answer applied immediately")
	}

	s = Reduce(s, AnswerAdded{Answer: discussion.Answer{ID: 300, DiscussionID: 1}})
	if !s.Discussion.HasBestAnswer || !s.Answers[0].IsBestAnswer {
		t.Fatal("deferred best mark not replayed")
	}
}

func TestVoteCountIsAuthoritative(t *testing.T) {
	s := FromSnapshot(testSnapshot())

	s = Reduce(s, VoteCountUpdated{Target: discussion.TargetRef{Type: discussion.TargetDiscussion, ID: 1}, VoteCount: 9})
	if s.Discussion.VoteCount != 9 {
		t.Fatalf("discussion count = %d, want 9", s.Discussion.VoteCount)
	}

	// Stale lower count still wins: last write is authoritative.
	s = Reduce(s, VoteCountUpdated{Target: discussion.TargetRef{Type: discussion.TargetAnswer, ID: 100}, VoteCount: 1})
	if s.Answers[0].VoteCount != 1 {
		t.Fatalf("answer count = %d, want 1", s.Answers[0].VoteCount)
	}

	s = Reduce(s, VoteCountUpdated{Target: discussion.TargetRef{Type: discussion.TargetReply, ID: 1000}, VoteCount: 5})
	if s.Answers[0].Replies[0].VoteCount != 5 {
		t.Fatalf("reply count = %d, want 5", s.Answers[0].Replies[0].VoteCount)
	}
}

func TestVoteCountForUnknownTargetIsBuffered(t *testing.T) {
	s := FromSnapshot(testSnapshot())

	s = Reduce(s, VoteCountUpdated{Target: discussion.TargetRef{Type: discussion.TargetAnswer, ID: 500}, VoteCount: 3})
	s = Reduce(s, AnswerAdded{Answer: discussion.Answer{ID: 500, DiscussionID: 1}})
	if s.Answers[0].VoteCount != 3 {
		t.Fatalf("buffered answer count not replayed: %d", s.Answers[0].VoteCount)
	}

	s = Reduce(s, VoteCountUpdated{Target: discussion.TargetRef{Type: discussion.TargetReply, ID: 5000}, VoteCount: 4})
	s = Reduce(s, ReplyAdded{AnswerID: 500, Reply: discussion.Reply{ID: 5000, AnswerID: 500}})
	if got := s.Answers[0].Replies[0].VoteCount; got != 4 {
		t.Fatalf("buffered reply count not replayed: %d", got)
	}
}

func TestSnapshotLoadedReplacesStateAndBuffers(t *testing.T) {
	s := FromSnapshot(testSnapshot())
	s = Reduce(s, ReplyAdded{AnswerID: 700, Reply: discussion.Reply{ID: 7000, AnswerID: 700}})
	s = Reduce(s, BestAnswerMarked{AnswerID: 700})

	fresh := testSnapshot()
	fresh.Answers = fresh.Answers[:1]
	s = Reduce(s, SnapshotLoaded{Snapshot: fresh})

	if len(s.Answers) != 1 || s.HasAnswer(99) {
		t.Fatal("snapshot did not replace the tree")
	}
	// Buffers cleared: the answer arriving now gets neither the stale reply
	// nor the stale best mark.
	s = Reduce(s, AnswerAdded{Answer: discussion.Answer{ID: 700, DiscussionID: 1}})
	if len(s.Answers[0].Replies) != 0 || s.Discussion.HasBestAnswer {
		t.Fatal("pre-snapshot buffers survived the reload")
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	before := FromSnapshot(testSnapshot())
	tree := before.Tree()

	_ = Reduce(before, AnswerAdded{Answer: discussion.Answer{ID: 555, DiscussionID: 1}})
	_ = Reduce(before, ReplyAdded{AnswerID: 100, Reply: discussion.Reply{ID: 1002, AnswerID: 100}})
	_ = Reduce(before, BestAnswerMarked{AnswerID: 100})
	_ = Reduce(before, VoteCountUpdated{Target: discussion.TargetRef{Type: discussion.TargetAnswer, ID: 100}, VoteCount: 42})

	if !reflect.DeepEqual(before.Tree(), tree) {
		t.Fatal("Reduce mutated its input state")
	}
	if before.HasAnswer(555) || before.HasReply(1002) {
		t.Fatal("Reduce mutated input membership indexes")
	}
}

// Full flow: load, local submit confirmed at id 101, then the channel
// redelivers the same answer plus a reply and a vote for it.
func TestLiveScenario(t *testing.T) {
	s := FromSnapshot(testSnapshot())

	mine := discussion.Answer{ID: 101, DiscussionID: 1, Content: "mine", AuthorID: 10}
	s = Reduce(s, AnswerAdded{Answer: mine})
	s = Reduce(s, AnswerAdded{Answer: mine}) // channel echo

	s = Reduce(s, ReplyAdded{AnswerID: 101, Reply: discussion.Reply{ID: 1010, AnswerID: 101, Content: "nice"}})
	s = Reduce(s, VoteCountUpdated{Target: discussion.TargetRef{Type: discussion.TargetAnswer, ID: 101}, VoteCount: 1})
	s = Reduce(s, BestAnswerMarked{AnswerID: 101})

	if got := answerIDs(s); !reflect.DeepEqual(got, []uint64{101, 100, 99}) {
		t.Fatalf("answer order = %v", got)
	}
	top := s.Answers[0]
	if top.VoteCount != 1 || !top.IsBestAnswer || len(top.Replies) != 1 {
		t.Fatalf("merged answer wrong: %+v", top)
	}
	if !s.Discussion.HasBestAnswer {
		t.Fatal("HasBestAnswer not set")
	}
}
