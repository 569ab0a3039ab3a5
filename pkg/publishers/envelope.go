package publishers

import (
	"encoding/json"
	"fmt"
)

// envelope is the JSON body delivered to webhook and queue targets.
type envelope struct {
	TargetID  string    `json:"target_id"`
	Text      string    `json:"text"`
	Promotion Promotion `json:"promotion"`
}

func marshalEnvelope(targetID string, msg Message) ([]byte, error) {
	payload, err := json.Marshal(envelope{
		TargetID:  targetID,
		Text:      msg.Text,
		Promotion: msg.Promotion,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal promotion: %w", err)
	}
	return payload, nil
}
