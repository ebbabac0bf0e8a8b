package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/orbitlearn/discussions/src/discussiond/types"
	"github.com/orbitlearn/discussions/src/shared/discussion"
)

var validCategories = map[string]bool{
	"general":   true,
	"technical": true,
	"courses":   true,
	"career":    true,
	"interview": true,
}

type Discussions struct {
	db        *gorm.DB
	sanitizer *bluemonday.Policy
}

func NewDiscussions(db *gorm.DB, sanitizer *bluemonday.Policy) Discussions {
	return Discussions{db: db, sanitizer: sanitizer}
}

// Snapshot returns a discussion and its full answer tree in one response.
// Answers come back most recently created first; replies oldest first.
func (h Discussions) Snapshot(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid discussion id"})
		return
	}

	var d types.Discussion
	if err := h.db.First(&d, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"err": "discussion not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	var answers []types.Answer
	h.db.Where("discussion_id = ?", id).Order("created_at desc, id desc").Find(&answers)

	answerIDs := make([]uint64, 0, len(answers))
	for _, a := range answers {
		answerIDs = append(answerIDs, a.ID)
	}
	byAnswer := make(map[uint64][]discussion.Reply)
	if len(answerIDs) > 0 {
		var replies []types.Reply
		h.db.Where("answer_id IN ?", answerIDs).Order("created_at asc, id asc").Find(&replies)
		for _, r := range replies {
			byAnswer[r.AnswerID] = append(byAnswer[r.AnswerID], r.ToWire())
		}
	}

	snap := discussion.Snapshot{
		Discussion: d.ToWire(),
		Answers:    make([]discussion.Answer, 0, len(answers)),
	}
	for _, a := range answers {
		snap.Answers = append(snap.Answers, a.ToWire(byAnswer[a.ID]))
	}
	c.JSON(http.StatusOK, snap)
}

// Create opens a new discussion thread.
func (h Discussions) Create(c *gin.Context) {
	var req struct {
		Title    string   `json:"title" binding:"required,min=1,max=255"`
		Content  string   `json:"content" binding:"required,min=1,max=10000"`
		Category string   `json:"category" binding:"required"`
		Tags     []string `json:"tags" binding:"max=5"`
		Images   []string `json:"images" binding:"max=3"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if !validCategories[req.Category] {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid category"})
		return
	}

	content, ok := cleanContent(h.sanitizer, req.Content)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid content"})
		return
	}

	userID, username := currentUser(c)
	d := types.Discussion{
		Title:          req.Title,
		Content:        content,
		Category:       req.Category,
		Tags:           types.EncodeList(req.Tags),
		Images:         types.EncodeList(req.Images),
		AuthorID:       userID,
		AuthorUsername: username,
	}
	if err := h.db.Create(&d).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, d.ToWire())
}
