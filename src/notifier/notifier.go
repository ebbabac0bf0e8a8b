// notifier forwards new answers from the discussion topics to a Discord
// channel so moderators see activity without watching the site.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"

	"github.com/orbitlearn/discussions/src/shared/channel"
	"github.com/orbitlearn/discussions/src/shared/discussion"
)

type config struct {
	DiscordToken     string
	DiscordChannelID string
	RedisURL         string
	SiteURL          string
}

func loadConfig() config {
	cfg := config{
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		RedisURL:         os.Getenv("REDIS_URL"),
		SiteURL:          os.Getenv("SITE_URL"),
	}
	if cfg.DiscordToken == "" || cfg.DiscordChannelID == "" {
		log.Fatal("DISCORD_TOKEN and DISCORD_CHANNEL_ID are required")
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = "http://localhost:3000"
	}
	return cfg
}

func main() {
	cfg := loadConfig()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalf("discord: %v", err)
	}
	if err := dg.Open(); err != nil {
		log.Fatalf("discord open: %v", err)
	}
	defer dg.Close()

	rdb := channel.MustRedis(cfg.RedisURL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go run(ctx, rdb, dg, cfg)
	log.Printf("notifier watching %s", channel.TopicPattern())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
}

func run(ctx context.Context, rdb *redis.Client, dg *discordgo.Session, cfg config) {
	pubsub := rdb.PSubscribe(ctx, channel.TopicPattern())
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			ev, err := discussion.DecodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("notifier: drop event on %s: %v", msg.Channel, err)
				continue
			}
			na, ok := ev.(discussion.NewAnswerEvent)
			if !ok {
				continue
			}
			if err := post(dg, cfg, na.Answer); err != nil {
				log.Printf("notifier: discord send: %v", err)
			}
		}
	}
}

func post(dg *discordgo.Session, cfg config, a discussion.Answer) error {
	excerpt := a.Content
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "…"
	}
	excerpt = strings.ReplaceAll(excerpt, "\n", " ")
	text := fmt.Sprintf("**%s** answered discussion #%d:\n> %s\n%s/discussions/%d",
		a.AuthorUsername, a.DiscussionID, excerpt, cfg.SiteURL, a.DiscussionID)
	_, err := dg.ChannelMessageSend(cfg.DiscordChannelID, text)
	return err
}
