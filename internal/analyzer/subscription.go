package analyzer

import (
	"encoding/json"
	"fmt"
)

// SubscriptionResponse is one update pushed by the daemon to a subscriber.
// On the wire it looks like:
//
//	{"name": "persistent_1234", "body": ["TypeErrors", [error, ...]]}
type SubscriptionResponse struct {
	Name string
	Body []Error
}

// ParseSubscriptionResponse parses one line read from the subscription
// socket after the initial snapshot.
func ParseSubscriptionResponse(line []byte) (SubscriptionResponse, error) {
	var envelope struct {
		Name *string         `json:"name"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return SubscriptionResponse{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if envelope.Name == nil || envelope.Body == nil {
		return SubscriptionResponse{}, fmt.Errorf("%w: subscription update missing name or body", ErrInvalidResponse)
	}

	body, err := ParseTypeErrors(envelope.Body)
	if err != nil {
		return SubscriptionResponse{}, err
	}
	return SubscriptionResponse{Name: *envelope.Name, Body: body}, nil
}

// SubscribeCommand renders the outbound subscription request for the given
// subscription name, newline terminated as the daemon expects.
func SubscribeCommand(name string) ([]byte, error) {
	command, err := json.Marshal([]string{"SubscribeToTypeErrors", name})
	if err != nil {
		return nil, err
	}
	return append(command, '\n'), nil
}
