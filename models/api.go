package models

// SendRequest is the body accepted by POST /send
type SendRequest struct {
	To        string `json:"to" binding:"required"`
	Message   string `json:"message" binding:"required"`
	ImagePath string `json:"imagePath,omitempty"`
}

// FetchMessagesQuery holds the query parameters of GET /fetch-messages
type FetchMessagesQuery struct {
	Number string `form:"number" binding:"required"`
}

// SendResponse is returned by POST /send on success
type SendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FetchMessagesResponse is returned by GET /fetch-messages on success
type FetchMessagesResponse struct {
	Success  bool             `json:"success"`
	Messages []FetchedMessage `json:"messages"`
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
