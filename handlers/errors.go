package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-relay/models"
	"whatsapp-relay/whatsapp"
)

// ValidationError is returned for requests missing required parameters
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	errMissingNumber = &ValidationError{Message: `O parâmetro "number" é obrigatório.`}
	errMissingSend   = &ValidationError{Message: `Parâmetros "to" e "message" são obrigatórios.`}
)

const chatNotFoundMessage = "Chat not found"

// statusFor maps an error to the HTTP status it is reported with. Chat lookup
// failures only become 404 where the endpoint distinguishes them.
func statusFor(err error, notFoundIs404 bool) int {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case notFoundIs404 && errors.Is(err, whatsapp.ErrChatNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, err error) {
	msg := err.Error()
	if status == http.StatusNotFound {
		msg = chatNotFoundMessage
	}
	c.JSON(status, models.ErrorResponse{Success: false, Error: msg})
}
