// Package realtime is the client side of the websocket pub/sub channel used for
// chat delivery and worker location pings.
package realtime

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Frame commands.
const (
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandSend        = "SEND"
	CommandMessage     = "MESSAGE"
	CommandError       = "ERROR"
)

// Outbound destinations handled by the server.
const (
	DestinationChat           = "/app/chat"
	destinationLocationPrefix = "/app/location/"
)

// Topic kinds reported by ParseTopic.
const (
	TopicChat     = "chat"
	TopicLocation = "location"
)

// ErrMalformedFrame is returned by a Conn for a message that is not a valid frame.
// The connection stays usable.
var ErrMalformedFrame = errors.New("realtime: malformed frame")

// Frame is one message of the wire protocol. ID is the subscription id on
// SUBSCRIBE, UNSUBSCRIBE and MESSAGE.
type Frame struct {
	Command     string          `json:"command"`
	Destination string          `json:"destination,omitempty"`
	ID          string          `json:"id,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// Decode parses a frame, wrapping any failure in ErrMalformedFrame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, errors.Join(ErrMalformedFrame, err)
	}
	if f.Command == "" {
		return Frame{}, ErrMalformedFrame
	}
	return f, nil
}

// ChatQueue is the per-application queue both parties of a conversation subscribe to.
func ChatQueue(applicationID int64) string {
	return "/user/" + strconv.FormatInt(applicationID, 10) + "/queue/messages"
}

// ChatTopic mirrors ChatQueue for observers that follow every message of an application.
func ChatTopic(applicationID int64) string {
	return "/topic/chat/" + strconv.FormatInt(applicationID, 10)
}

// LocationTopic carries the pings of one worker.
func LocationTopic(workerID int64) string {
	return "/topic/location/" + strconv.FormatInt(workerID, 10)
}

// LocationDestination is where a worker publishes its own pings.
func LocationDestination(workerID int64) string {
	return destinationLocationPrefix + strconv.FormatInt(workerID, 10)
}

// ParseTopic reports what a subscribable destination carries: TopicChat with
// the application id for chat queues and topics, TopicLocation with the worker id
// for location topics.
func ParseTopic(dest string) (kind string, id int64, ok bool) {
	switch {
	case strings.HasPrefix(dest, "/user/") && strings.HasSuffix(dest, "/queue/messages"):
		id, ok = parseID(strings.TrimSuffix(strings.TrimPrefix(dest, "/user/"), "/queue/messages"))
		return TopicChat, id, ok
	case strings.HasPrefix(dest, "/topic/chat/"):
		id, ok = parseID(strings.TrimPrefix(dest, "/topic/chat/"))
		return TopicChat, id, ok
	case strings.HasPrefix(dest, "/topic/location/"):
		id, ok = parseID(strings.TrimPrefix(dest, "/topic/location/"))
		return TopicLocation, id, ok
	}
	return "", 0, false
}

// ParseLocationDestination returns the worker id of a LocationDestination.
func ParseLocationDestination(dest string) (int64, bool) {
	if !strings.HasPrefix(dest, destinationLocationPrefix) {
		return 0, false
	}
	return parseID(strings.TrimPrefix(dest, destinationLocationPrefix))
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
