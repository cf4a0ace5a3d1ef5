package protocol

import (
	"encoding/json"

	"github.com/dkeye/Relay/internal/domain"
)

// Delivery is the flat server->client payload of a relayed message.
type Delivery struct {
	Message  string        `json:"message"`
	SenderID domain.UserID `json:"senderId"`
	IsRead   *bool         `json:"isRead,omitempty"`
}

func NewDelivery(text string, sender domain.UserID, withReadFlag bool) Delivery {
	d := Delivery{Message: text, SenderID: sender}
	if withReadFlag {
		unread := false
		d.IsRead = &unread
	}
	return d
}

func (d Delivery) Encode() ([]byte, error) {
	return json.Marshal(d)
}
