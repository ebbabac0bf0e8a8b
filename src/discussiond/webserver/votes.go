package webserver

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/orbitlearn/discussions/src/discussiond/types"
	"github.com/orbitlearn/discussions/src/shared/channel"
	"github.com/orbitlearn/discussions/src/shared/discussion"
)

type Votes struct {
	db  *gorm.DB
	bus *channel.Bus
}

func NewVotes(db *gorm.DB, bus *channel.Bus) Votes {
	return Votes{db: db, bus: bus}
}

// Cast records a directional vote. One vote per user per target: a repeat
// in the same direction is a conflict, a repeat in the other direction
// flips the earlier vote. The response and the broadcast both carry the
// authoritative count, never a client-computed delta.
func (v Votes) Cast(c *gin.Context) {
	var req struct {
		TargetType string `json:"targetType" binding:"required,oneof=discussion answer reply"`
		TargetID   uint64 `json:"targetId" binding:"required"`
		Direction  string `json:"direction" binding:"required,oneof=up down"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	discussionID, ok := v.resolveDiscussion(req.TargetType, req.TargetID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"err": "vote target not found"})
		return
	}

	dir := int16(1)
	if req.Direction == "down" {
		dir = -1
	}
	userID, _ := currentUser(c)

	var existing types.Vote
	err := v.db.First(&existing, "target_type = ? AND target_id = ? AND user_id = ?",
		req.TargetType, req.TargetID, userID).Error
	switch {
	case err == nil:
		if existing.Direction == dir {
			c.JSON(http.StatusConflict, gin.H{"err": "already voted"})
			return
		}
		if err := v.db.Model(&existing).Update("direction", dir).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
			return
		}
	case err == gorm.ErrRecordNotFound:
		vote := types.Vote{
			TargetType: req.TargetType,
			TargetID:   req.TargetID,
			UserID:     userID,
			Direction:  dir,
		}
		if err := v.db.Create(&vote).Error; err != nil {
			// Unique index catches two concurrent first votes.
			c.JSON(http.StatusConflict, gin.H{"err": "already voted"})
			return
		}
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	var count int64
	v.db.Model(&types.Vote{}).
		Select("coalesce(sum(direction), 0)").
		Where("target_type = ? AND target_id = ?", req.TargetType, req.TargetID).
		Scan(&count)
	v.storeCount(req.TargetType, req.TargetID, int(count))

	ev := discussion.VoteCountUpdatedEvent{
		TargetID:   req.TargetID,
		TargetType: discussion.TargetType(req.TargetType),
		VoteCount:  int(count),
	}
	if err := v.bus.Emit(c, discussionID, ev); err != nil {
		log.Printf("broadcast vote_count_updated %s/%d: %v", req.TargetType, req.TargetID, err)
	}
	c.JSON(http.StatusOK, gin.H{"voteCount": int(count)})
}

// resolveDiscussion maps a vote target onto the discussion whose topic the
// update is broadcast on.
func (v Votes) resolveDiscussion(targetType string, targetID uint64) (uint64, bool) {
	switch targetType {
	case "discussion":
		var d types.Discussion
		if err := v.db.First(&d, targetID).Error; err != nil {
			return 0, false
		}
		return d.ID, true
	case "answer":
		var a types.Answer
		if err := v.db.First(&a, targetID).Error; err != nil {
			return 0, false
		}
		return a.DiscussionID, true
	case "reply":
		var r types.Reply
		if err := v.db.First(&r, targetID).Error; err != nil {
			return 0, false
		}
		var a types.Answer
		if err := v.db.First(&a, r.AnswerID).Error; err != nil {
			return 0, false
		}
		return a.DiscussionID, true
	}
	return 0, false
}

// storeCount refreshes the denormalized count on the target row so
// snapshots agree with broadcasts.
func (v Votes) storeCount(targetType string, targetID uint64, count int) {
	switch targetType {
	case "discussion":
		v.db.Model(&types.Discussion{}).Where("id = ?", targetID).Update("vote_count", count)
	case "answer":
		v.db.Model(&types.Answer{}).Where("id = ?", targetID).Update("vote_count", count)
	case "reply":
		v.db.Model(&types.Reply{}).Where("id = ?", targetID).Update("vote_count", count)
	}
}
