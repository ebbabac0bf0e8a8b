package webserver

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orbitlearn/discussions/src/discussiond/config"
	"github.com/orbitlearn/discussions/src/shared/channel"
)

func attachRoutes(r *gin.Engine, cfg config.Config, db *gorm.DB, rdb *redis.Client) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "https://app.orbitlearn.io"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	bus := channel.New(rdb)
	sanitizer := newSanitizer()

	discH := NewDiscussions(db, sanitizer)
	ansH := NewAnswers(db, bus, sanitizer)
	voteH := NewVotes(db, bus)
	wsH := NewGateway(bus)

	v1 := r.Group("/v1")
	{
		// Discussions are a public read.
		v1.GET("/discussions/:id", discH.Snapshot)

		secured := v1.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
		secured.POST("/discussions", discH.Create)
		secured.POST("/discussions/:id/answers", ansH.Create)
		secured.POST("/answers/:id/replies", ansH.CreateReply)
		secured.POST("/answers/:id/best", ansH.MarkBest)
		secured.POST("/votes", voteH.Cast)
		secured.GET("/discussions/:id/ws", wsH.Stream)
	}
}
