package v1

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/parleyhq/parley/server/engine"
	"github.com/parleyhq/parley/store"
)

type postMessageRequest struct {
	PersonaUID string `json:"personaUid"`
	Content    string `json:"content"`
	// NoReply posts without starting a turn, for history editing.
	NoReply bool `json:"noReply"`
}

type swipeRequest struct {
	Direction string `json:"direction"`
}

type editMessageRequest struct {
	Content  *string `json:"content"`
	IsHidden *bool   `json:"isHidden"`
}

type functionResultRequest struct {
	FunctionName string `json:"functionName"`
	Result       string `json:"result"`
}

func (s *APIV1Service) registerMessageRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/messages")
	g.PATCH("/:id", s.editMessage)
	g.DELETE("/:id", s.deleteMessage)
	g.POST("/:id/swipe", s.swipeMessage)
	g.POST("/:id/regenerate", s.regenerateMessage)
	g.POST("/:id/function-result", s.submitFunctionResult)
}

func (s *APIV1Service) findMessage(c *echo.Context) (*store.ChatMessage, *store.Chat, error) {
	rawID, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid message id")
	}
	msg, err := s.Store.GetChatMessage(c.Request().Context(), int32(rawID))
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if msg == nil {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, "message not found")
	}
	chat, err := s.Store.GetChat(c.Request().Context(), &store.FindChat{ID: &msg.ChatID})
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if chat == nil {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	return msg, chat, nil
}

func (s *APIV1Service) listChatMessages(c *echo.Context) error {
	chat, err := s.findChat(c)
	if err != nil {
		return err
	}
	msgs, err := s.Store.ListChatMessages(c.Request().Context(), &store.FindChatMessage{ChatID: &chat.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]engine.MessageEvent, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, engine.NewMessageEvent(chat, m))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) postChatMessage(c *echo.Context) error {
	chat, err := s.findChat(c)
	if err != nil {
		return err
	}
	var req postMessageRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content required")
	}
	ctx := c.Request().Context()
	create := &store.ChatMessage{
		ChatID:  chat.ID,
		Role:    store.RoleUser,
		Content: req.Content,
	}
	if req.PersonaUID != "" {
		persona, err := s.Store.GetPersona(ctx, &store.FindPersona{UID: &req.PersonaUID})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if persona == nil {
			return echo.NewHTTPError(http.StatusNotFound, "persona not found")
		}
		create.PersonaID = &persona.ID
	}
	if chat.Title == "New Chat" {
		if prior, err := s.Store.ListChatMessages(ctx, &store.FindChatMessage{ChatID: &chat.ID}); err == nil && len(prior) == 0 {
			title := deriveTitle(req.Content)
			if _, err := s.Store.UpdateChat(ctx, &store.UpdateChat{UID: chat.UID, Title: &title}); err != nil {
				slog.Warn("failed to auto-title chat", "chat", chat.UID, "err", err)
			}
		}
	}
	msg, err := s.Store.CreateChatMessage(ctx, create)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !req.NoReply {
		s.spawnTurn(chat.UID, engine.TurnOptions{})
	}
	return c.JSON(http.StatusCreated, engine.NewMessageEvent(chat, msg))
}

// deriveTitle turns the first message of a chat into its title.
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if r := []rune(title); len(r) > 48 {
		title = strings.TrimSpace(string(r[:48])) + "..."
	}
	return title
}

func (s *APIV1Service) editMessage(c *echo.Context) error {
	msg, chat, err := s.findMessage(c)
	if err != nil {
		return err
	}
	if msg.IsGenerating {
		return echo.NewHTTPError(http.StatusConflict, "message is generating")
	}
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	update := &store.UpdateChatMessage{ID: msg.ID, IsHidden: req.IsHidden}
	if req.Content != nil {
		update.Content = req.Content
		// Editing rewrites the current alternative in place.
		if sw := msg.Metadata.Swipes; sw != nil && sw.CurrentIdx != nil && *sw.CurrentIdx < len(sw.History) {
			sw.History[*sw.CurrentIdx] = *req.Content
			update.Metadata = &msg.Metadata
		}
	}
	updated, _, err := s.Store.UpdateChatMessage(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, engine.NewMessageEvent(chat, updated))
}

func (s *APIV1Service) deleteMessage(c *echo.Context) error {
	msg, _, err := s.findMessage(c)
	if err != nil {
		return err
	}
	if msg.IsGenerating {
		return echo.NewHTTPError(http.StatusConflict, "message is generating")
	}
	if err := s.Store.DeleteChatMessage(c.Request().Context(), msg.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) swipeMessage(c *echo.Context) error {
	msg, chat, err := s.findMessage(c)
	if err != nil {
		return err
	}
	if msg.Role != store.RoleAssistant {
		return echo.NewHTTPError(http.StatusBadRequest, "only character replies can be swiped")
	}
	if msg.IsGenerating {
		return echo.NewHTTPError(http.StatusConflict, "message is generating")
	}
	if msg.IsHidden {
		return echo.NewHTTPError(http.StatusBadRequest, "hidden messages cannot be swiped")
	}
	var req swipeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var needsGeneration bool
	switch req.Direction {
	case "left":
		if err := engine.SwipeLeft(msg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	case "right":
		needsGeneration = engine.SwipeRight(msg)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "direction must be left or right")
	}

	generating := msg.IsGenerating
	update := &store.UpdateChatMessage{
		ID:           msg.ID,
		Content:      &msg.Content,
		IsGenerating: &generating,
		Metadata:     &msg.Metadata,
	}
	if needsGeneration {
		// Claim the slot before the row is persisted as generating so the
		// orphan reconciler cannot finalize it before its session starts.
		gid := s.Engine.BeginGeneration(chat.ID, msg.ID)
		update.GenerationID = &gid
	}
	updated, _, err := s.Store.UpdateChatMessage(c.Request().Context(), update)
	if err != nil {
		if update.GenerationID != nil {
			s.Engine.EndGeneration(*update.GenerationID)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if needsGeneration {
		s.spawnGeneration(msg.ID)
	}
	return c.JSON(http.StatusOK, engine.NewMessageEvent(chat, updated))
}

func (s *APIV1Service) regenerateMessage(c *echo.Context) error {
	msg, chat, err := s.findMessage(c)
	if err != nil {
		return err
	}
	if msg.Role != store.RoleAssistant {
		return echo.NewHTTPError(http.StatusBadRequest, "only character replies can be regenerated")
	}
	if msg.IsGenerating {
		return echo.NewHTTPError(http.StatusConflict, "message is generating")
	}
	engine.PrepareRegenerate(msg)
	generating := true
	gid := s.Engine.BeginGeneration(chat.ID, msg.ID)
	updated, _, err := s.Store.UpdateChatMessage(c.Request().Context(), &store.UpdateChatMessage{
		ID:           msg.ID,
		Content:      &msg.Content,
		IsGenerating: &generating,
		GenerationID: &gid,
		Metadata:     &msg.Metadata,
	})
	if err != nil {
		s.Engine.EndGeneration(gid)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.spawnGeneration(msg.ID)
	return c.JSON(http.StatusOK, engine.NewMessageEvent(chat, updated))
}

func (s *APIV1Service) submitFunctionResult(c *echo.Context) error {
	msg, chat, err := s.findMessage(c)
	if err != nil {
		return err
	}
	pause := msg.Metadata.Reasoning
	if pause == nil || !pause.WaitingForFunctionSelection {
		return echo.NewHTTPError(http.StatusConflict, "message is not waiting for a function selection")
	}
	var req functionResultRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Result) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "result required")
	}
	ctx := c.Request().Context()

	result := req.Result
	if req.FunctionName != "" {
		result = req.FunctionName + ": " + result
	}

	// Reasoning metadata stays on the message so the resumed session skips
	// hand-off detection; only the waiting flag flips and the outcome is
	// recorded for the resumed prompt.
	pause.WaitingForFunctionSelection = false
	pause.FunctionResult = result
	updated, _, err := s.Store.UpdateChatMessage(ctx, &store.UpdateChatMessage{
		ID:       msg.ID,
		Metadata: &msg.Metadata,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.spawnGeneration(msg.ID)
	return c.JSON(http.StatusAccepted, engine.NewMessageEvent(chat, updated))
}

// spawnTurn runs a chat turn detached from the request so the HTTP response
// returns immediately and a closed request body cannot abort the stream.
func (s *APIV1Service) spawnTurn(chatUID string, opts engine.TurnOptions) {
	go func() {
		if err := s.Engine.RunTurn(context.Background(), chatUID, opts); err != nil {
			slog.Error("turn failed", "chat", chatUID, "err", err)
		}
	}()
}

func (s *APIV1Service) spawnGeneration(messageID int32) {
	go func() {
		if err := s.Engine.GenerateInto(context.Background(), messageID); err != nil {
			slog.Error("generation failed", "message", messageID, "err", err)
		}
	}()
}
