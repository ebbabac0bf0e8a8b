// Package discussion holds the wire-level discussion model shared by the
// store service, the push channel and the viewer core.
package discussion

import "time"

// Discussion is a question thread. Answers are ordered most recently
// created first; the viewer never re-sorts them.
type Discussion struct {
	ID             uint64    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Category       string    `json:"category"`
	Tags           []string  `json:"tags"`
	Images         []string  `json:"images"`
	AuthorID       uint64    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	VoteCount      int       `json:"vote_count"`
	HasBestAnswer  bool      `json:"has_best_answer"`
	CreatedAt      time.Time `json:"created_at"`
}

// Answer belongs to one discussion. Replies are kept in arrival order
// (appended, oldest first). At most one answer per discussion carries
// IsBestAnswer.
type Answer struct {
	ID             uint64    `json:"id"`
	DiscussionID   uint64    `json:"discussion_id"`
	Content        string    `json:"content"`
	Images         []string  `json:"images"`
	AuthorID       uint64    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	VoteCount      int       `json:"vote_count"`
	IsBestAnswer   bool      `json:"is_best_answer"`
	Replies        []Reply   `json:"replies"`
	CreatedAt      time.Time `json:"created_at"`
}

// Reply is a leaf comment on an answer.
type Reply struct {
	ID             uint64    `json:"id"`
	AnswerID       uint64    `json:"answer_id"`
	Content        string    `json:"content"`
	Images         []string  `json:"images"`
	AuthorID       uint64    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	VoteCount      int       `json:"vote_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Snapshot is one authoritative fetch of a discussion and its full tree.
type Snapshot struct {
	Discussion Discussion `json:"discussion"`
	Answers    []Answer   `json:"answers"`
}

// TargetType identifies what a vote count refers to.
type TargetType string

const (
	TargetDiscussion TargetType = "discussion"
	TargetAnswer     TargetType = "answer"
	TargetReply      TargetType = "reply"
)

// TargetRef addresses one votable entity.
type TargetRef struct {
	Type TargetType `json:"targetType"`
	ID   uint64     `json:"targetId"`
}

// VoteDirection is the direction of a single vote action.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// Author is the identity attached to locally issued actions.
type Author struct {
	ID       uint64
	Username string
}
