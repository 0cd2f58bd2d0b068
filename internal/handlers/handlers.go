// Package handlers is the REST surface over the conversation engine.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/ingest"
	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/middleware"
	"github.com/fathima-sithara/conversation-service/internal/models"
	"github.com/fathima-sithara/conversation-service/internal/readstate"
	"github.com/fathima-sithara/conversation-service/internal/store"
)

type Handler struct {
	store    *store.Store
	tracker  *readstate.Tracker
	ingestor *ingest.Ingestor
	log      *zap.SugaredLogger
}

func New(st *store.Store, tracker *readstate.Tracker, ingestor *ingest.Ingestor, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{store: st, tracker: tracker, ingestor: ingestor, log: log}
}

func caller(c *fiber.Ctx) (string, models.Role) {
	uid, _ := c.Locals(middleware.LocalUserID).(string)
	role, _ := c.Locals(middleware.LocalRole).(models.Role)
	return uid, role
}

// httpStatus maps engine sentinels to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrMessageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrEmptyMessage),
		errors.Is(err, apperr.ErrAttachmentLimit),
		errors.Is(err, apperr.ErrInvalidVoice),
		errors.Is(err, apperr.ErrVoiceNotEditable):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUploadTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrUpload):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Errorw("request failed", "path", c.Path(), "err", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// participant loads the conversation and verifies the caller belongs to it.
func (h *Handler) participant(c *fiber.Ctx, conversationID string) (*models.Conversation, models.Role, error) {
	conv, err := h.store.GetConversation(c.Context(), conversationID)
	if err != nil {
		return nil, "", err
	}
	uid, _ := caller(c)
	role := conv.RoleOf(uid)
	if role == "" {
		return nil, "", apperr.ErrPermission
	}
	return conv, role, nil
}

// POST /conversations
func (h *Handler) CreateConversation(c *fiber.Ctx) error {
	var body struct {
		StudentID string `json:"student_id"`
		CoachID   string `json:"coach_id"`
		AdminID   string `json:"admin_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.ErrBadRequest
	}
	uid, role := caller(c)
	p := store.Participants{StudentID: body.StudentID, CoachID: body.CoachID, AdminID: body.AdminID}
	// the caller always takes their own seat
	switch role {
	case models.RoleStudent:
		p.StudentID = uid
	case models.RoleCoach:
		p.CoachID = uid
	case models.RoleAdmin:
		p.AdminID = uid
	}
	conv, err := h.store.GetOrCreate(c.Context(), p)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(conv)
}

// GET /conversations
func (h *Handler) Inbox(c *fiber.Ctx) error {
	uid, _ := caller(c)
	entries, err := h.store.Inbox(c.Context(), uid)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(entries)
}

// GET /conversations/:id/messages
func (h *Handler) History(c *fiber.Ctx) error {
	convID := c.Params("id")
	if _, _, err := h.participant(c, convID); err != nil {
		return h.fail(c, err)
	}
	msgs, err := h.store.History(c.Context(), convID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msgs)
}

// POST /conversations/:id/messages
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	convID := c.Params("id")
	if _, _, err := h.participant(c, convID); err != nil {
		return h.fail(c, err)
	}
	var body struct {
		Content     string                 `json:"content"`
		Attachments []models.AttachmentRef `json:"attachments"`
		Kind        models.MessageKind     `json:"kind"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.ErrBadRequest
	}
	uid, role := caller(c)
	m, err := h.store.Append(c.Context(), convID, uid, role, body.Content, body.Attachments, body.Kind)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(m)
}

// PATCH /messages/:id
func (h *Handler) EditMessage(c *fiber.Ctx) error {
	var body struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.ErrBadRequest
	}
	uid, _ := caller(c)
	m, err := h.store.EditContent(c.Context(), c.Params("id"), uid, body.Content)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(m)
}

// DELETE /messages/:id
func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	uid, _ := caller(c)
	if err := h.store.Delete(c.Context(), c.Params("id"), uid); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// DELETE /conversations/:id
func (h *Handler) DeleteConversation(c *fiber.Ctx) error {
	convID := c.Params("id")
	if _, _, err := h.participant(c, convID); err != nil {
		return h.fail(c, err)
	}
	if err := h.store.DeleteConversation(c.Context(), convID); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// POST /conversations/:id/read
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	convID := c.Params("id")
	_, role, err := h.participant(c, convID)
	if err != nil {
		return h.fail(c, err)
	}
	var body struct {
		UpToMessageID string `json:"up_to_message_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.UpToMessageID == "" {
		return fiber.ErrBadRequest
	}
	if err := h.tracker.MarkRead(c.Context(), convID, role, body.UpToMessageID); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// GET /conversations/:id/unread
func (h *Handler) UnreadCount(c *fiber.Ctx) error {
	convID := c.Params("id")
	_, role, err := h.participant(c, convID)
	if err != nil {
		return h.fail(c, err)
	}
	n, err := h.tracker.UnreadCount(c.Context(), convID, role)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}

// POST /attachments — multipart form, field "files"
func (h *Handler) UploadAttachments(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.ErrBadRequest
	}
	files := form.File["files"]
	if len(files) == 0 {
		return fiber.ErrBadRequest
	}

	ups := make([]ingest.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return h.fail(c, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return h.fail(c, err)
		}
		declared := fh.Header.Get("Content-Type")
		if declared == "" {
			declared = fh.Filename
		}
		ups = append(ups, ingest.Upload{Declared: declared, Data: data})
	}

	refs, err := h.ingestor.IngestBatch(c.Context(), ups)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"attachments": refs})
}
