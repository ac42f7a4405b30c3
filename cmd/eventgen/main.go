// Command eventgen crafts synthetic change-feed payloads and injects them
// through pg_notify or the bridged NATS subjects. It stands in for the real
// chat API during development and manual testing, and can mint access
// tokens for connecting test clients.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/chatspace/notify-server/internal/auth"
	"github.com/chatspace/notify-server/internal/event"
	"github.com/chatspace/notify-server/internal/messaging"
)

func main() {
	var (
		via     = flag.String("via", "postgres", "delivery transport: postgres | nats")
		dsn     = flag.String("db", os.Getenv("DATABASE_URL"), "Postgres DSN for pg_notify")
		natsURL = flag.String("nats", os.Getenv("NATS_URL"), "NATS URL for bridged feed subjects")

		op         = flag.String("op", "message", "payload kind: message | insert | update | delete")
		chatID     = flag.Int64("chat", 1, "chat ID")
		wsID       = flag.Int64("ws", 1, "workspace ID")
		members    = flag.String("members", "1,2", "chat members, comma-separated user IDs")
		oldMembers = flag.String("old-members", "", "previous members for -op update (defaults to -members)")
		sender     = flag.Int64("sender", 1, "sender user ID for -op message")
		content    = flag.String("content", "hello from eventgen", "message content")

		mintUser  = flag.Int64("mint-token", 0, "mint an access token for this user ID and exit")
		jwtSecret = flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "shared JWT secret for -mint-token")
		jwtIssuer = flag.String("jwt-issuer", "chat-api", "JWT issuer for -mint-token")
	)
	flag.Parse()

	if *mintUser > 0 {
		if *jwtSecret == "" {
			log.Fatal("-mint-token requires -jwt-secret or JWT_SECRET")
		}
		token, err := auth.NewVerifier(*jwtSecret, *jwtIssuer).GenerateToken(*mintUser, 24*time.Hour)
		if err != nil {
			log.Fatalf("failed to mint token: %v", err)
		}
		fmt.Println(token)
		return
	}

	channel, payload := buildPayload(*op, *chatID, *wsID, *members, *oldMembers, *sender, *content)

	switch *via {
	case "postgres":
		if *dsn == "" {
			log.Fatal("-via postgres requires -db or DATABASE_URL")
		}
		db, err := sql.Open("postgres", *dsn)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := db.Exec("SELECT pg_notify($1, $2)", channel, payload); err != nil {
			log.Fatalf("pg_notify failed: %v", err)
		}

	case "nats":
		if *natsURL == "" {
			log.Fatal("-via nats requires -nats or NATS_URL")
		}
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = *natsURL
		natsConfig.Name = "eventgen"
		client, err := messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer client.Close()

		if err := client.PublishFeed(channel, []byte(payload)); err != nil {
			log.Fatalf("publish failed: %v", err)
		}

	default:
		log.Fatalf("unknown transport %q", *via)
	}

	log.Printf("sent %s payload on %s (%d bytes)", *op, channel, len(payload))
}

// buildPayload assembles the raw JSON exactly as the storage triggers would.
func buildPayload(op string, chatID, wsID int64, members, oldMembers string, sender int64, content string) (channel, payload string) {
	now := time.Now().UTC()
	chat := event.Chat{
		ID:        chatID,
		WsID:      wsID,
		Type:      event.ChatTypeGroup,
		Members:   parseMembers(members),
		CreatedAt: now,
	}

	switch op {
	case "message":
		msg := event.Message{
			ID:        now.UnixNano(),
			ChatID:    chatID,
			SenderID:  sender,
			Content:   content,
			Files:     []string{},
			CreatedAt: now,
		}
		return event.ChannelChatMessageCreated, mustMarshal(map[string]interface{}{
			"chat":    chat,
			"message": msg,
		})

	case "insert":
		return event.ChannelChatUpdated, mustMarshal(map[string]interface{}{
			"op":  "INSERT",
			"old": nil,
			"new": chat,
		})

	case "update":
		old := chat
		if oldMembers != "" {
			old.Members = parseMembers(oldMembers)
		}
		return event.ChannelChatUpdated, mustMarshal(map[string]interface{}{
			"op":  "UPDATE",
			"old": old,
			"new": chat,
		})

	case "delete":
		return event.ChannelChatUpdated, mustMarshal(map[string]interface{}{
			"op":  "DELETE",
			"old": chat,
			"new": nil,
		})

	default:
		log.Fatalf("unknown payload kind %q", op)
		return "", ""
	}
}

func parseMembers(s string) []int64 {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			log.Fatalf("invalid member ID %q", p)
		}
		ids = append(ids, id)
	}
	return ids
}

func mustMarshal(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Fatalf("marshal payload: %v", err)
	}
	return string(data)
}
