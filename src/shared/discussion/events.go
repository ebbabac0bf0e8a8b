package discussion

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names carried on the per-discussion topic.
const (
	EventNewAnswer        = "new_answer"
	EventNewReply         = "new_reply"
	EventBestAnswerMarked = "best_answer_marked"
	EventVoteCountUpdated = "vote_count_updated"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
)

// ErrDecode marks a malformed or unrecognized channel payload. Subscribers
// log it and drop the message; it never reaches the reducer.
var ErrDecode = errors.New("malformed event")

// Event is one decoded channel message.
type Event interface {
	EventName() string
}

type NewAnswerEvent struct {
	Answer Answer
}

func (NewAnswerEvent) EventName() string { return EventNewAnswer }

type NewReplyEvent struct {
	AnswerID uint64 `json:"answerId"`
	Reply    Reply  `json:"reply"`
}

func (NewReplyEvent) EventName() string { return EventNewReply }

type BestAnswerMarkedEvent struct {
	AnswerID uint64 `json:"answerId"`
}

func (BestAnswerMarkedEvent) EventName() string { return EventBestAnswerMarked }

type VoteCountUpdatedEvent struct {
	TargetID   uint64     `json:"targetId"`
	TargetType TargetType `json:"targetType"`
	VoteCount  int        `json:"voteCount"`
}

func (VoteCountUpdatedEvent) EventName() string { return EventVoteCountUpdated }

type TypingStartEvent struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
}

func (TypingStartEvent) EventName() string { return EventTypingStart }

type TypingStopEvent struct {
	UserID uint64 `json:"userId"`
}

func (TypingStopEvent) EventName() string { return EventTypingStop }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEvent wraps an event in the wire envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	var payload any = ev
	if na, ok := ev.(NewAnswerEvent); ok {
		// new_answer carries the answer object itself as the payload
		payload = na.Answer
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return json.Marshal(envelope{Event: ev.EventName(), Data: data})
}

// DecodeEvent parses a wire envelope into a typed event. Unknown event
// names and bad payloads return an error wrapping ErrDecode.
func DecodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Event == "" || len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: empty envelope", ErrDecode)
	}

	var (
		ev  Event
		err error
	)
	switch env.Event {
	case EventNewAnswer:
		var a Answer
		err = json.Unmarshal(env.Data, &a)
		ev = NewAnswerEvent{Answer: a}
	case EventNewReply:
		var e NewReplyEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case EventBestAnswerMarked:
		var e BestAnswerMarkedEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case EventVoteCountUpdated:
		var e VoteCountUpdatedEvent
		err = json.Unmarshal(env.Data, &e)
		if err == nil {
			switch e.TargetType {
			case TargetDiscussion, TargetAnswer, TargetReply:
			default:
				return nil, fmt.Errorf("%w: unknown target type %q", ErrDecode, e.TargetType)
			}
		}
		ev = e
	case EventTypingStart:
		var e TypingStartEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case EventTypingStop:
		var e TypingStopEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrDecode, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, env.Event, err)
	}
	return ev, nil
}
