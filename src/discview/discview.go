// discview is a terminal viewer for one discussion: it opens a sync
// session against the store and the push channel and reprints the merged
// tree whenever anything changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/golang-jwt/jwt/v5"

	"github.com/orbitlearn/discussions/src/shared/channel"
	"github.com/orbitlearn/discussions/src/shared/discussion"
	"github.com/orbitlearn/discussions/src/viewer/client"
	"github.com/orbitlearn/discussions/src/viewer/session"
)

func main() {
	var (
		apiURL       = flag.String("api", "http://localhost:8080", "store service base URL")
		redisURL     = flag.String("redis", "redis://localhost:6379/0", "redis URL for the push channel")
		discussionID = flag.Uint64("id", 0, "discussion id to view")
		token        = flag.String("token", "", "bearer JWT identifying the viewer")
	)
	flag.Parse()
	if *discussionID == 0 {
		log.Fatal("-id is required")
	}

	local, err := identityFromToken(*token)
	if err != nil {
		log.Fatalf("token: %v", err)
	}

	bus := channel.New(channel.MustRedis(*redisURL))
	store := client.New(*apiURL, *token)

	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	ctx := context.Background()
	sess, err := session.Open(ctx, session.Config{
		DiscussionID: *discussionID,
		LocalUser:    local,
		Store:        store,
		Join: func(ctx context.Context, id uint64) (session.Subscription, error) {
			return bus.Join(ctx, id)
		},
		OnChange: notify,
	})
	if err != nil {
		log.Fatalf("open discussion %d: %v", *discussionID, err)
	}
	defer sess.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	render(sess)
	for {
		select {
		case <-changed:
			render(sess)
		case <-sig:
			return
		}
	}
}

// identityFromToken reads uid/name claims without verifying; the store
// does the real verification on every write.
func identityFromToken(token string) (discussion.Author, error) {
	if token == "" {
		return discussion.Author{}, nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return discussion.Author{}, err
	}
	uid, _ := claims["uid"].(float64)
	name, _ := claims["name"].(string)
	return discussion.Author{ID: uint64(uid), Username: name}, nil
}

func render(sess *session.Session) {
	tree := sess.Tree()
	d := tree.Discussion

	var b strings.Builder
	fmt.Fprintf(&b, "\n== %s (#%d, %+d votes", d.Title, d.ID, d.VoteCount)
	if d.HasBestAnswer {
		b.WriteString(", solved")
	}
	fmt.Fprintf(&b, ") ==\n%s\n", d.Content)

	for _, a := range tree.Answers {
		marker := " "
		if a.IsBestAnswer {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s [%+d] %s: %s\n", marker, a.VoteCount, a.AuthorUsername, a.Content)
		for _, r := range a.Replies {
			fmt.Fprintf(&b, "    [%+d] %s: %s\n", r.VoteCount, r.AuthorUsername, r.Content)
		}
	}

	if typing := sess.TypingUsers(); len(typing) > 0 {
		names := make([]string, 0, len(typing))
		for _, name := range typing {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "-- %s typing…\n", strings.Join(names, ", "))
	}
	if msg := sess.LastError(); msg != "" {
		fmt.Fprintf(&b, "!! %s\n", msg)
	}
	fmt.Print(b.String())
}
