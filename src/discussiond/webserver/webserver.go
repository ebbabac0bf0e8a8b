package webserver

import (
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orbitlearn/discussions/src/discussiond/config"
)

func New(cfg config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	attachRoutes(g, cfg, db, rdb)
	return g
}

// newSanitizer builds the strict policy applied to all user-authored
// markdown content before it is stored or broadcast.
func newSanitizer() *bluemonday.Policy {
	sanitizer := bluemonday.StrictPolicy()
	sanitizer.AllowElements("p", "br", "strong", "em", "code", "pre", "blockquote")
	sanitizer.AllowElements("ul", "ol", "li")
	sanitizer.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	sanitizer.AllowAttrs("href").OnElements("a")
	sanitizer.RequireParseableURLs(true)
	sanitizer.AddTargetBlankToFullyQualifiedLinks(true)
	sanitizer.RequireNoFollowOnLinks(true)
	return sanitizer
}

// cleanContent sanitizes user-authored markdown and re-checks the bounds
// that matter after sanitization.
func cleanContent(sanitizer *bluemonday.Policy, content string) (string, bool) {
	content = sanitizer.Sanitize(content)
	if !utf8.ValidString(content) {
		return "", false
	}
	if len(content) < 1 || len(content) > 10000 {
		return "", false
	}
	return content, true
}
