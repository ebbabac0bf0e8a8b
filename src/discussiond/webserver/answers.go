package webserver

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/orbitlearn/discussions/src/discussiond/types"
	"github.com/orbitlearn/discussions/src/shared/channel"
	"github.com/orbitlearn/discussions/src/shared/discussion"
)

type Answers struct {
	db        *gorm.DB
	bus       *channel.Bus
	sanitizer *bluemonday.Policy
}

func NewAnswers(db *gorm.DB, bus *channel.Bus, sanitizer *bluemonday.Policy) Answers {
	return Answers{db: db, bus: bus, sanitizer: sanitizer}
}

// Create stores a new answer and broadcasts it to every viewer of the
// discussion. The submitter receives the broadcast too; viewer-side
// idempotence absorbs the duplicate.
func (h Answers) Create(c *gin.Context) {
	discussionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || discussionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid discussion id"})
		return
	}
	var req struct {
		Content string   `json:"content" binding:"required,min=1,max=10000"`
		Images  []string `json:"images" binding:"max=3"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	content, ok := cleanContent(h.sanitizer, req.Content)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid content"})
		return
	}

	var d types.Discussion
	if err := h.db.First(&d, discussionID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "discussion not found"})
		return
	}

	userID, username := currentUser(c)
	a := types.Answer{
		DiscussionID:   d.ID,
		Content:        content,
		Images:         types.EncodeList(req.Images),
		AuthorID:       userID,
		AuthorUsername: username,
	}
	if err := h.db.Create(&a).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	wire := a.ToWire(nil)
	if err := h.bus.Emit(c, d.ID, discussion.NewAnswerEvent{Answer: wire}); err != nil {
		log.Printf("broadcast new_answer %d: %v", a.ID, err)
	}
	c.JSON(http.StatusCreated, wire)
}

// CreateReply stores a new reply on an answer and broadcasts it.
func (h Answers) CreateReply(c *gin.Context) {
	answerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || answerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid answer id"})
		return
	}
	var req struct {
		Content string   `json:"content" binding:"required,min=1,max=10000"`
		Images  []string `json:"images" binding:"max=2"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	content, ok := cleanContent(h.sanitizer, req.Content)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid content"})
		return
	}

	var a types.Answer
	if err := h.db.First(&a, answerID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "answer not found"})
		return
	}

	userID, username := currentUser(c)
	r := types.Reply{
		AnswerID:       a.ID,
		Content:        content,
		Images:         types.EncodeList(req.Images),
		AuthorID:       userID,
		AuthorUsername: username,
	}
	if err := h.db.Create(&r).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	if err := h.bus.Emit(c, a.DiscussionID, discussion.NewReplyEvent{AnswerID: a.ID, Reply: r.ToWire()}); err != nil {
		log.Printf("broadcast new_reply %d: %v", r.ID, err)
	}
	c.JSON(http.StatusCreated, r.ToWire())
}

// MarkBest designates a best answer. Only the discussion author may call
// it, and only once per discussion; the flag never transitions back.
func (h Answers) MarkBest(c *gin.Context) {
	answerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || answerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid answer id"})
		return
	}

	var a types.Answer
	if err := h.db.First(&a, answerID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "answer not found"})
		return
	}
	var d types.Discussion
	if err := h.db.First(&d, a.DiscussionID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "discussion not found"})
		return
	}

	userID, _ := currentUser(c)
	if userID != d.AuthorID {
		c.JSON(http.StatusForbidden, gin.H{"err": "only the discussion author can mark the best answer"})
		return
	}
	if d.HasBestAnswer {
		c.JSON(http.StatusConflict, gin.H{"err": "a best answer is already chosen"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		// Guard against a concurrent mark racing past the check above.
		res := tx.Model(&types.Discussion{}).
			Where("id = ? AND has_best_answer = ?", d.ID, false).
			Update("has_best_answer", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrDuplicatedKey
		}
		return tx.Model(&types.Answer{}).
			Where("id = ?", a.ID).
			Update("is_best_answer", true).Error
	})
	if err == gorm.ErrDuplicatedKey {
		c.JSON(http.StatusConflict, gin.H{"err": "a best answer is already chosen"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	if err := h.bus.Emit(c, d.ID, discussion.BestAnswerMarkedEvent{AnswerID: a.ID}); err != nil {
		log.Printf("broadcast best_answer_marked %d: %v", a.ID, err)
	}
	c.JSON(http.StatusOK, gin.H{"answerId": a.ID})
}
