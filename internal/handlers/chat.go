package handlers

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/realtime"
	"github.com/chamadopro/backend/internal/store"
	"github.com/chamadopro/backend/internal/utils"
)

type ChatHandler struct {
	Store     store.Store
	Hub       *realtime.Hub
	RDB       *redis.Client
	JWTSecret string
}

func NewChatHandler(st store.Store, hub *realtime.Hub, rdb *redis.Client, jwtSecret string) *ChatHandler {
	return &ChatHandler{Store: st, Hub: hub, RDB: rdb, JWTSecret: jwtSecret}
}

type ParticipantMini struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type SessionSummary struct {
	ID              string           `json:"id"`
	ProposalID      string           `json:"proposal_id"`
	ProposalTitle   string           `json:"proposal_title"`
	ProposalStatus  string           `json:"proposal_status"`
	Contractor      *ParticipantMini `json:"contractor,omitempty"`
	Professional    *ParticipantMini `json:"professional,omitempty"`
	LastMessageText string           `json:"last_message_text"`
	LastMessageAt   time.Time        `json:"last_message_at"`
}

type MessageResponse struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	SessionID string          `json:"session_id"`
	SenderID  string          `json:"sender_id"`
	Kind      string          `json:"kind"`
	Text      string          `json:"text"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toMessageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID.String(),
		Seq:       m.Seq,
		SessionID: m.SessionID.String(),
		SenderID:  m.SenderID.String(),
		Kind:      string(m.Kind),
		Text:      m.Text,
		Payload:   json.RawMessage(m.Payload),
		CreatedAt: m.CreatedAt,
	}
}

func toParticipantMini(u *models.User) *ParticipantMini {
	if u == nil {
		return nil
	}
	return &ParticipantMini{
		ID:        u.ID.String(),
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

func sessionParticipant(sess *models.NegotiationSession, userID uuid.UUID) bool {
	if sess.Proposal == nil {
		return false
	}
	if sess.Proposal.ContractorID == userID {
		return true
	}
	return sess.Proposal.ProfessionalID != nil && *sess.Proposal.ProfessionalID == userID
}

// GetSessions returns a summary of every negotiation the caller is
// part of, newest activity first.
func (h *ChatHandler) GetSessions(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	sessions, err := h.Store.ListSessionsForUser(c.Context(), userUUID)
	if err != nil {
		return respondStoreError(c, err)
	}

	out := make([]SessionSummary, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]

		summary := SessionSummary{
			ID:              sess.ID.String(),
			ProposalID:      sess.ProposalID.String(),
			LastMessageText: "start",
			LastMessageAt:   sess.LastMessageAt,
		}
		if sess.Proposal != nil {
			summary.ProposalTitle = sess.Proposal.Title
			summary.ProposalStatus = string(sess.Proposal.Status)
			summary.Contractor = toParticipantMini(sess.Proposal.Contractor)
			summary.Professional = toParticipantMini(sess.Proposal.Professional)
		}

		// "start" only when the chat holds nothing beyond system
		// markers; otherwise the newest participant message wins even
		// if a system entry came after it.
		last, err := h.Store.LastUserMessage(c.Context(), sess.ID)
		if err != nil {
			log.Println("Error fetching last message:", err)
		} else if last != nil {
			summary.LastMessageText = last.Text
		}

		out = append(out, summary)
	}

	return c.JSON(fiber.Map{"success": true, "data": out})
}

// GetMessages returns the full ordered history of one session.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	sessID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}

	sess, err := h.Store.GetSession(c.Context(), sessID)
	if err != nil {
		return respondStoreError(c, err)
	}
	if !sessionParticipant(sess, userUUID) {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Access denied"})
	}

	msgs, err := h.Store.ListMessages(c.Context(), sessID)
	if err != nil {
		return respondStoreError(c, err)
	}

	out := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageResponse(&msgs[i]))
	}

	return c.JSON(fiber.Map{"success": true, "data": out})
}

type ScheduleData struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type SendMessageRequest struct {
	SessionID string        `json:"session_id" validate:"required"`
	Kind      string        `json:"kind"`
	Text      string        `json:"text"`
	MediaURL  string        `json:"media_url"`
	Schedule  *ScheduleData `json:"schedule"`
}

// SendMessage appends one message to a session's log and fans it out:
// the session channel gets the full message, the counter-party's
// personal channel gets a lightweight notification if they are not
// watching the chat.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "session_id is required")
	}

	sessID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}

	sess, err := h.Store.GetSession(c.Context(), sessID)
	if err != nil {
		return respondStoreError(c, err)
	}
	if !sessionParticipant(sess, userUUID) {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Access denied"})
	}
	if sess.Proposal != nil && sess.Proposal.Status == models.ProposalCompleted {
		return c.Status(409).JSON(fiber.Map{"success": false, "message": "Negotiation is closed"})
	}

	msg := models.Message{
		SessionID: sessID,
		SenderID:  userUUID,
	}

	kind := models.MessageKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind == "" {
		kind = models.KindText
	}
	switch kind {
	case models.KindText:
		if strings.TrimSpace(req.Text) == "" {
			return badRequest(c, "Text is required")
		}
		msg.Kind = models.KindText
		msg.Text = req.Text

	case models.KindImage:
		if strings.TrimSpace(req.MediaURL) == "" {
			return badRequest(c, "media_url is required for image messages")
		}
		msg.Kind = models.KindImage
		msg.Text = "Sent an image"
		if err := msg.SetPayload(models.ImagePayload{URL: req.MediaURL}); err != nil {
			return respondStoreError(c, err)
		}

	case models.KindSchedule:
		if req.Schedule == nil || req.Schedule.Date == "" || req.Schedule.Time == "" {
			return badRequest(c, "schedule date and time are required")
		}
		msg.Kind = models.KindSchedule
		msg.Text = "Visit proposal: " + req.Schedule.Date + " at " + req.Schedule.Time
		if err := msg.SetPayload(models.SchedulePayload{
			Date:   req.Schedule.Date,
			Time:   req.Schedule.Time,
			Status: models.SchedulePending,
		}); err != nil {
			return respondStoreError(c, err)
		}

	default:
		return badRequest(c, "Unknown message kind")
	}

	if err := h.Store.AppendMessage(c.Context(), &msg); err != nil {
		return respondStoreError(c, err)
	}

	msgResp := toMessageResponse(&msg)
	h.Hub.SendToSession(sessID, fiber.Map{
		"type":    "new_message",
		"message": msgResp,
	})
	h.notifyCounterParty(c, sess, userUUID, msgResp)

	return c.JSON(fiber.Map{"success": true, "data": msgResp})
}

type UpdateMessageStatusRequest struct {
	Status string `json:"status"`
}

// UpdateMessageStatus settles a schedule message: CONFIRMED or
// REJECTED, by the counter-party only.
func (h *ChatHandler) UpdateMessageStatus(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	msgID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid message ID")
	}

	var req UpdateMessageStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	status := models.ScheduleStatus(strings.ToUpper(strings.TrimSpace(req.Status)))

	msg, followUp, err := h.Store.UpdateScheduleStatus(c.Context(), msgID, userUUID, status)
	if err != nil {
		return respondStoreError(c, err)
	}

	msgResp := toMessageResponse(msg)
	h.Hub.SendToSession(msg.SessionID, fiber.Map{
		"type":    "schedule_update",
		"message": msgResp,
	})
	if followUp != nil {
		h.Hub.SendToSession(msg.SessionID, fiber.Map{
			"type":    "new_message",
			"message": toMessageResponse(followUp),
		})
	}

	return c.JSON(fiber.Map{"success": true, "data": msgResp})
}

// notifyCounterParty pushes a lightweight event to the other
// participant's personal channel unless they already watch the session
// channel, and mirrors it on Redis for out-of-process consumers.
func (h *ChatHandler) notifyCounterParty(c *fiber.Ctx, sess *models.NegotiationSession, senderID uuid.UUID, msg MessageResponse) {
	if sess.Proposal == nil || sess.Proposal.ProfessionalID == nil {
		return
	}
	recipientID := sess.Proposal.ContractorID
	if senderID == recipientID {
		recipientID = *sess.Proposal.ProfessionalID
	}

	if h.Hub.IsSubscribed(recipientID, sess.ID) {
		return
	}

	event := fiber.Map{
		"type":       "notification",
		"event":      "chat_message",
		"session_id": sess.ID.String(),
		"sender_id":  senderID.String(),
		"text":       msg.Text,
	}
	h.Hub.SendToUser(recipientID, event)
	realtime.PublishNotification(c.Context(), h.RDB, recipientID, event)
}

// WebSocketUpgrade authenticates the handshake before the upgrade
// happens; connections without a valid token never reach the hub.
func (h *ChatHandler) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	claims, err := utils.ParseJWT(h.JWTSecret, c.Query("token"))
	if err != nil {
		return fiber.ErrUnauthorized
	}
	userUUID, err := uuid.Parse(claims.UserID)
	if err != nil || userUUID == uuid.Nil {
		return fiber.ErrUnauthorized
	}

	c.Locals("wsUserID", userUUID)
	return c.Next()
}

type wsCommand struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// WebSocketHandler runs one connection: registers it on the personal
// channel and handles join_session/leave_session commands.
func (h *ChatHandler) WebSocketHandler(c *websocket.Conn) {
	userUUID, ok := c.Locals("wsUserID").(uuid.UUID)
	if !ok {
		c.Close()
		return
	}

	log.Printf("WebSocket: user %s connected\n", userUUID)

	client := &realtime.Client{
		ID:     uuid.New().String(),
		UserID: userUUID,
		Conn:   realtime.NewWebSocketConn(c),
		Send:   make(chan []byte, 256),
	}

	h.Hub.RegisterClient(client)
	defer func() {
		h.Hub.UnregisterClient(client)
		log.Printf("WebSocket: user %s disconnected\n", userUUID)
	}()

	// Writer: hub -> socket.
	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Println("WebSocket write error:", err)
				return
			}
		}
	}()

	for {
		var cmd wsCommand
		if err := c.ReadJSON(&cmd); err != nil {
			log.Printf("WebSocket read error for user %s: %v\n", userUUID, err)
			break
		}

		switch cmd.Type {
		case "join_session":
			sessID, err := uuid.Parse(cmd.SessionID)
			if err != nil {
				continue
			}
			// Membership check keeps strangers off session channels.
			sess, err := h.Store.GetSession(context.Background(), sessID)
			if err != nil || !sessionParticipant(sess, userUUID) {
				log.Printf("WebSocket: user %s denied join to session %s\n", userUUID, sessID)
				continue
			}
			h.Hub.JoinSession(client, sessID)
		case "leave_session":
			if sessID, err := uuid.Parse(cmd.SessionID); err == nil {
				h.Hub.LeaveSession(client, sessID)
			}
		case "pong":
			// keepalive reply, nothing to do
		}
	}
}
