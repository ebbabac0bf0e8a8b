package discussion

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestEventRoundTrip(t *testing.T) {
	events := []Event{
		NewAnswerEvent{Answer: Answer{ID: 101, DiscussionID: 1, Content: "hi", AuthorUsername: "ayesha"}},
		NewReplyEvent{AnswerID: 101, Reply: Reply{ID: 5, AnswerID: 101, Content: "yo"}},
		BestAnswerMarkedEvent{AnswerID: 101},
		VoteCountUpdatedEvent{TargetID: 101, TargetType: TargetAnswer, VoteCount: 3},
		TypingStartEvent{UserID: 9, Username: "marco"},
		TypingStopEvent{UserID: 9},
	}
	for _, ev := range events {
		raw, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("encode %s: %v", ev.EventName(), err)
		}
		got, err := DecodeEvent(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", ev.EventName(), err)
		}
		if !reflect.DeepEqual(got, ev) {
			t.Fatalf("%s round trip: got %+v, want %+v", ev.EventName(), got, ev)
		}
	}
}

func TestNewAnswerPayloadIsBareAnswer(t *testing.T) {
	raw, err := EncodeEvent(NewAnswerEvent{Answer: Answer{ID: 42, DiscussionID: 1}})
	if err != nil {
		t.Fatal(err)
	}
	// Browser clients read event.data.id directly; there is no wrapper
	// object around the answer.
	if !strings.Contains(string(raw), `"data":{"id":42`) {
		t.Fatalf("unexpected wire form: %s", raw)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "{nope"},
		{"empty envelope", `{}`},
		{"missing data", `{"event":"new_reply"}`},
		{"unknown event", `{"event":"discussion_deleted","data":{}}`},
		{"payload type mismatch", `{"event":"best_answer_marked","data":{"answerId":"one"}}`},
		{"unknown vote target", `{"event":"vote_count_updated","data":{"targetId":1,"targetType":"course","voteCount":2}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tc.raw))
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
		})
	}
}
