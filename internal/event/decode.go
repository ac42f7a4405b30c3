package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Feed channel names this server listens on. The set is closed: payloads
// arriving on anything else are rejected with ErrUnknownChannel.
const (
	ChannelChatUpdated        = "chat_updated"
	ChannelChatMessageCreated = "chat_message_created"
)

// Channels returns every feed channel the decoder understands, in the order
// the listener subscribes to them.
func Channels() []string {
	return []string{ChannelChatUpdated, ChannelChatMessageCreated}
}

// Decode errors. All of them are recoverable: the listener logs the message
// and moves on, it never stops consuming the feed over a bad payload.
var (
	ErrUnknownChannel   = errors.New("event: unknown feed channel")
	ErrUnknownOperation = errors.New("event: unknown chat operation")
	ErrMalformedPayload = errors.New("event: malformed feed payload")
)

// chatUpdated is the raw payload emitted by the chats trigger. Old carries
// the pre-update row, New the post-update row; either may be absent
// depending on Op.
type chatUpdated struct {
	Op  string `json:"op"`
	Old *Chat  `json:"old"`
	New *Chat  `json:"new"`
}

// chatMessageCreated is the raw payload emitted by the messages trigger.
// The chat row rides along so recipients can be resolved without a storage
// read.
type chatMessageCreated struct {
	Chat    *Chat    `json:"chat"`
	Message *Message `json:"message"`
}

// Decode classifies a (channel, payload) pair from the change feed into a
// Notification. The returned event is allocated once and shared by every
// recipient.
func Decode(channel, payload string) (*Notification, error) {
	switch channel {
	case ChannelChatUpdated:
		return decodeChatUpdated(payload)
	case ChannelChatMessageCreated:
		return decodeMessageCreated(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
}

func decodeChatUpdated(payload string) (*Notification, error) {
	var raw chatUpdated
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var ev *AppEvent
	switch raw.Op {
	case "INSERT":
		if raw.New == nil {
			return nil, fmt.Errorf("%w: INSERT without new row", ErrMalformedPayload)
		}
		ev = &AppEvent{Type: TypeNewChat, Chat: raw.New}
	case "UPDATE":
		if raw.New == nil {
			return nil, fmt.Errorf("%w: UPDATE without new row", ErrMalformedPayload)
		}
		ev = &AppEvent{Type: TypeAddToChat, Chat: raw.New}
	case "DELETE":
		if raw.Old == nil {
			return nil, fmt.Errorf("%w: DELETE without old row", ErrMalformedPayload)
		}
		ev = &AppEvent{Type: TypeRemoveFromChat, Chat: raw.Old}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, raw.Op)
	}

	var recipients map[int64]struct{}
	switch raw.Op {
	case "INSERT":
		recipients = memberSet(raw.New.Members)
	case "UPDATE":
		recipients = AffectedUsers(raw.Old, raw.New)
	case "DELETE":
		recipients = memberSet(raw.Old.Members)
	}

	return &Notification{UserIDs: recipients, Event: ev}, nil
}

func decodeMessageCreated(payload string) (*Notification, error) {
	var raw chatMessageCreated
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Chat == nil || raw.Message == nil {
		return nil, fmt.Errorf("%w: message payload missing chat or message", ErrMalformedPayload)
	}

	return &Notification{
		UserIDs: memberSet(raw.Chat.Members),
		Event:   &AppEvent{Type: TypeNewMessage, Message: raw.Message},
	}, nil
}
