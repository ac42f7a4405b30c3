// Package event defines the typed domain events produced by the storage
// change feed, the raw payload shapes they are decoded from, and the
// membership-diff logic that decides which users a change affects. All
// events are serialized as JSON with a "type" discriminator.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChatType enumerates the chat kinds known to the storage layer.
type ChatType string

const (
	ChatTypeSingle         ChatType = "single"
	ChatTypeGroup          ChatType = "group"
	ChatTypePublicChannel  ChatType = "public_channel"
	ChatTypePrivateChannel ChatType = "private_channel"
)

// Chat mirrors the chats row carried inside feed payloads. Members is an
// unordered set of user IDs; the producers guarantee at least two entries.
type Chat struct {
	ID        int64     `json:"id"`
	WsID      int64     `json:"ws_id"`
	Name      *string   `json:"name"`
	Type      ChatType  `json:"type"`
	Members   []int64   `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Message mirrors the messages row carried inside feed payloads.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType is the wire discriminator for AppEvent variants.
type EventType string

const (
	TypeNewChat        EventType = "NewChat"
	TypeAddToChat      EventType = "AddToChat"
	TypeRemoveFromChat EventType = "RemoveFromChat"
	TypeNewMessage     EventType = "NewMessage"
)

// AppEvent is a closed tagged union: exactly one of Chat or Message is set,
// determined by Type. Chat is set for NewChat, AddToChat and RemoveFromChat;
// Message is set for NewMessage. Instances are immutable after decoding and
// shared by reference across every recipient's channel.
type AppEvent struct {
	Type    EventType
	Chat    *Chat
	Message *Message
}

// MarshalJSON flattens the active entity's fields next to the "type" tag,
// producing frames like {"type":"NewMessage","id":1,"chat_id":2,...}. The
// event tag owns the "type" key in the frame, so a chat's own kind field is
// not repeated there.
func (e *AppEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeNewChat, TypeAddToChat, TypeRemoveFromChat:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*Chat
		}{e.Type, e.Chat})
	case TypeNewMessage:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*Message
		}{e.Type, e.Message})
	default:
		return nil, fmt.Errorf("event: cannot marshal unknown event type %q", e.Type)
	}
}

// UnmarshalJSON reverses MarshalJSON. It is used by client-side tooling and
// tests; the server itself only ever encodes.
func (e *AppEvent) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	switch tag.Type {
	case TypeNewChat, TypeAddToChat, TypeRemoveFromChat:
		// The shadow field keeps the frame's "type" tag out of Chat.Type.
		var frame struct {
			Chat
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return err
		}
		chat := frame.Chat
		e.Type, e.Chat, e.Message = tag.Type, &chat, nil
	case TypeNewMessage:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		e.Type, e.Chat, e.Message = tag.Type, nil, &msg
	default:
		return fmt.Errorf("event: cannot unmarshal unknown event type %q", tag.Type)
	}
	return nil
}

// Notification pairs a decoded event with the set of users it must be
// delivered to. The AppEvent is shared, not cloned per recipient.
type Notification struct {
	UserIDs map[int64]struct{}
	Event   *AppEvent
}
