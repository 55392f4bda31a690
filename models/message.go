package models

// QuotedMessage is the message an inbound message replies to
type QuotedMessage struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// InboundMessage is the payload forwarded to the webhook for every received message
type InboundMessage struct {
	From          string         `json:"from"`
	Body          string         `json:"body"`
	IsGroup       bool           `json:"isGroup"`
	QuotedMessage *QuotedMessage `json:"quotedMessage"`
}

// FetchedMessage is the read-only view returned by /fetch-messages
type FetchedMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}
