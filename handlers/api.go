package handlers

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"whatsapp-relay/models"
	"whatsapp-relay/session"
	"whatsapp-relay/utils"
	"whatsapp-relay/whatsapp"
)

// fetchLimit is the number of messages returned by /fetch-messages
const fetchLimit = 10

const sendSuccessMessage = "Mensagem enviada com sucesso!"

// WhatsAppClient is the part of whatsapp.Client used by the HTTP API and the
// event relay
type WhatsAppClient interface {
	GetState() models.ConnectionState
	GetChatByID(ctx context.Context, id string) (*whatsapp.Chat, error)
	FetchMessages(ctx context.Context, chat *whatsapp.Chat, limit int) ([]*whatsapp.Message, error)
	SendMessage(ctx context.Context, chatID string, text string) error
	SendMedia(ctx context.Context, chatID string, media *whatsapp.Media, caption string) error
	GetQuotedMessage(ctx context.Context, msg *whatsapp.Message) (*whatsapp.Message, error)
}

// API serves the relay's HTTP endpoints
type API struct {
	client  WhatsAppClient
	session *session.State
	hub     *Hub
	timeout time.Duration
	log     zerolog.Logger

	// LoadMedia reads the file referenced by imagePath
	LoadMedia func(path string) (*whatsapp.Media, error)
}

// NewAPI builds the API. hub may be nil, in which case /ws is not served.
func NewAPI(client WhatsAppClient, state *session.State, hub *Hub, timeout time.Duration, log zerolog.Logger) *API {
	return &API{
		client:    client,
		session:   state,
		hub:       hub,
		timeout:   timeout,
		log:       log,
		LoadMedia: whatsapp.MediaFromFilePath,
	}
}

// Register adds the API routes to router
func (a *API) Register(router *gin.Engine) {
	router.SetHTMLTemplate(pageTemplates)

	router.GET("/qrcode-wpp", a.handleQRCode)
	router.GET("/fetch-messages", a.handleFetchMessages)
	router.POST("/send", a.handleSend)
	router.GET("/status", a.handleStatus)
	if a.hub != nil {
		router.GET("/ws", a.handleWebSocket)
	}
}

func (a *API) clientContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), a.timeout)
}

func wantsJSON(c *gin.Context) bool {
	if c.Query("format") == "json" {
		return true
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

func (a *API) handleQRCode(c *gin.Context) {
	qrImage, ok := a.session.QR()
	state, _ := a.session.ConnectionState()

	if wantsJSON(c) {
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"success":         false,
				"error":           "QR code not available",
				"connectionState": state,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"qrCode":          qrImage,
			"connectionState": state,
		})
		return
	}

	if !ok {
		c.HTML(http.StatusNotFound, "unavailable", gin.H{"State": state})
		return
	}
	// The image is produced by qr.Renderer, never by the caller.
	c.HTML(http.StatusOK, "qrcode", gin.H{"Image": template.URL(qrImage), "State": state})
}

func (a *API) handleFetchMessages(c *gin.Context) {
	var query models.FetchMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, errMissingNumber)
		return
	}

	ctx, cancel := a.clientContext(c)
	defer cancel()

	chatID := utils.NormalizeChatID(query.Number)
	chat, err := a.client.GetChatByID(ctx, chatID)
	if err != nil {
		a.log.Warn().Err(err).Str("chat", chatID).Msg("Could not resolve chat")
		respondError(c, statusFor(err, false), err)
		return
	}

	messages, err := a.client.FetchMessages(ctx, chat, fetchLimit)
	if err != nil {
		a.log.Error().Err(err).Str("chat", chatID).Msg("❌ Could not fetch messages")
		respondError(c, statusFor(err, false), err)
		return
	}
	if len(messages) > fetchLimit {
		messages = messages[len(messages)-fetchLimit:]
	}

	out := make([]models.FetchedMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, models.FetchedMessage{
			ID:        m.ID,
			From:      m.From,
			Body:      m.Body,
			Timestamp: m.Timestamp.Unix(),
		})
	}
	c.JSON(http.StatusOK, models.FetchMessagesResponse{Success: true, Messages: out})
}

func (a *API) handleSend(c *gin.Context) {
	var req models.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, errMissingSend)
		return
	}

	ctx, cancel := a.clientContext(c)
	defer cancel()

	chatID := utils.NormalizeChatID(req.To)
	chat, err := a.client.GetChatByID(ctx, chatID)
	if err != nil {
		a.log.Warn().Err(err).Str("chat", chatID).Msg("Could not resolve chat")
		respondError(c, statusFor(err, true), err)
		return
	}

	if req.ImagePath != "" {
		err = a.sendMedia(ctx, chat, req.ImagePath, req.Message)
	} else {
		err = a.client.SendMessage(ctx, chat.ID, req.Message)
	}
	if err != nil {
		a.log.Error().Err(err).Str("chat", chat.ID).Msg("❌ Could not send message")
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	a.log.Info().Str("chat", chat.ID).Msg("✅ Message sent")
	c.JSON(http.StatusOK, models.SendResponse{Success: true, Message: sendSuccessMessage})
}

func (a *API) sendMedia(ctx context.Context, chat *whatsapp.Chat, path, caption string) error {
	media, err := a.LoadMedia(path)
	if err != nil {
		return err
	}
	return a.client.SendMedia(ctx, chat.ID, media, caption)
}

func (a *API) handleStatus(c *gin.Context) {
	snap := a.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"connectionState": snap.ConnectionState,
		"hasQr":           snap.HasQR(),
	})
}

func (a *API) handleWebSocket(c *gin.Context) {
	initial := &models.WSMessage{Type: models.WSTypeSession, Payload: a.session.Snapshot()}
	a.hub.HandleWebSocket(c.Writer, c.Request, initial)
}
