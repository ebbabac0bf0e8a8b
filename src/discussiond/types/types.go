package types

import (
	"encoding/json"
	"time"

	"github.com/orbitlearn/discussions/src/shared/discussion"
)

// Discussions (question threads)
type Discussion struct {
	ID             uint64 `gorm:"primaryKey"`
	Title          string `gorm:"size:255;not null"`
	Content        string `gorm:"type:text;not null"`
	Category       string `gorm:"size:64;index"`
	Tags           string `gorm:"type:text"` // JSON array
	Images         string `gorm:"type:text"` // JSON array of URLs
	AuthorID       uint64 `gorm:"index;not null"`
	AuthorUsername string `gorm:"size:64;not null"`
	VoteCount      int    `gorm:"default:0"`
	HasBestAnswer  bool   `gorm:"default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Answers on a discussion
type Answer struct {
	ID             uint64 `gorm:"primaryKey"`
	DiscussionID   uint64 `gorm:"index;not null"`
	Content        string `gorm:"type:text;not null"`
	Images         string `gorm:"type:text"`
	AuthorID       uint64 `gorm:"index;not null"`
	AuthorUsername string `gorm:"size:64;not null"`
	VoteCount      int    `gorm:"default:0"`
	IsBestAnswer   bool   `gorm:"default:false"`
	CreatedAt      time.Time
}

// Replies on an answer
type Reply struct {
	ID             uint64 `gorm:"primaryKey"`
	AnswerID       uint64 `gorm:"index;not null"`
	Content        string `gorm:"type:text;not null"`
	Images         string `gorm:"type:text"`
	AuthorID       uint64 `gorm:"index;not null"`
	AuthorUsername string `gorm:"size:64;not null"`
	VoteCount      int    `gorm:"default:0"`
	CreatedAt      time.Time
}

// Vote ledger: one row per user per target. This table is the authority
// behind the one-vote rule the viewers trust.
type Vote struct {
	ID         uint64 `gorm:"primaryKey"`
	TargetType string `gorm:"size:16;not null;uniqueIndex:uniq_vote,priority:1"`
	TargetID   uint64 `gorm:"not null;uniqueIndex:uniq_vote,priority:2"`
	UserID     uint64 `gorm:"not null;uniqueIndex:uniq_vote,priority:3"`
	Direction  int16  `gorm:"not null"` // +1 up, -1 down
	CreatedAt  time.Time
}

func encodeList(in []string) string {
	if len(in) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeList(in string) []string {
	var out []string
	if err := json.Unmarshal([]byte(in), &out); err != nil {
		return []string{}
	}
	return out
}

// ToWire converts a stored discussion to its wire shape.
func (d Discussion) ToWire() discussion.Discussion {
	return discussion.Discussion{
		ID:             d.ID,
		Title:          d.Title,
		Content:        d.Content,
		Category:       d.Category,
		Tags:           decodeList(d.Tags),
		Images:         decodeList(d.Images),
		AuthorID:       d.AuthorID,
		AuthorUsername: d.AuthorUsername,
		VoteCount:      d.VoteCount,
		HasBestAnswer:  d.HasBestAnswer,
		CreatedAt:      d.CreatedAt,
	}
}

// ToWire converts a stored answer; replies are attached by the caller.
func (a Answer) ToWire(replies []discussion.Reply) discussion.Answer {
	if replies == nil {
		replies = []discussion.Reply{}
	}
	return discussion.Answer{
		ID:             a.ID,
		DiscussionID:   a.DiscussionID,
		Content:        a.Content,
		Images:         decodeList(a.Images),
		AuthorID:       a.AuthorID,
		AuthorUsername: a.AuthorUsername,
		VoteCount:      a.VoteCount,
		IsBestAnswer:   a.IsBestAnswer,
		Replies:        replies,
		CreatedAt:      a.CreatedAt,
	}
}

// ToWire converts a stored reply.
func (r Reply) ToWire() discussion.Reply {
	return discussion.Reply{
		ID:             r.ID,
		AnswerID:       r.AnswerID,
		Content:        r.Content,
		Images:         decodeList(r.Images),
		AuthorID:       r.AuthorID,
		AuthorUsername: r.AuthorUsername,
		VoteCount:      r.VoteCount,
		CreatedAt:      r.CreatedAt,
	}
}

// EncodeList is exposed for handlers storing tag/image lists.
func EncodeList(in []string) string { return encodeList(in) }
