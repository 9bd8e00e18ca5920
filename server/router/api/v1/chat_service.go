package v1

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"

	"github.com/parleyhq/parley/store"
)

type chatRequest struct {
	Title         string `json:"title"`
	ChatType      string `json:"chatType"`
	ReplyStrategy string `json:"replyStrategy"`
}

type chatResponse struct {
	UID           string `json:"uid"`
	Title         string `json:"title"`
	ChatType      string `json:"chatType"`
	ReplyStrategy string `json:"replyStrategy"`
	CreatedTs     int64  `json:"createdTs"`
	UpdatedTs     int64  `json:"updatedTs"`
}

type participantRequest struct {
	CharacterUID string `json:"characterUid"`
	PersonaUID   string `json:"personaUid"`
	Position     int32  `json:"position"`
	IsActive     *bool  `json:"isActive"`
}

func (s *APIV1Service) registerChatRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/chats")
	g.GET("", s.listChats)
	g.POST("", s.createChat)
	g.GET("/:uid", s.getChat)
	g.PATCH("/:uid", s.updateChat)
	g.DELETE("/:uid", s.deleteChat)
	g.POST("/:uid/participants", s.upsertParticipant)
	g.GET("/:uid/messages", s.listChatMessages)
	g.POST("/:uid/messages", s.postChatMessage)
}

func toChatResponse(ch *store.Chat) chatResponse {
	return chatResponse{
		UID:           ch.UID,
		Title:         ch.Title,
		ChatType:      string(ch.ChatType),
		ReplyStrategy: ch.ReplyStrategy,
		CreatedTs:     ch.CreatedTs,
		UpdatedTs:     ch.UpdatedTs,
	}
}

func (s *APIV1Service) findChat(c *echo.Context) (*store.Chat, error) {
	uid := c.Param("uid")
	chat, err := s.Store.GetChat(c.Request().Context(), &store.FindChat{UID: &uid})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if chat == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	return chat, nil
}

func (s *APIV1Service) listChats(c *echo.Context) error {
	chats, err := s.Store.ListChats(c.Request().Context(), &store.FindChat{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]chatResponse, 0, len(chats))
	for _, ch := range chats {
		resp = append(resp, toChatResponse(ch))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createChat(c *echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Title == "" {
		req.Title = "New Chat"
	}
	chatType := store.ChatTypeNormal
	if req.ChatType != "" {
		chatType = store.ChatType(req.ChatType)
	}
	if chatType != store.ChatTypeNormal && chatType != store.ChatTypeAssistant {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown chat type")
	}
	if req.ReplyStrategy == "" {
		req.ReplyStrategy = "round_robin"
	}
	chat, err := s.Store.CreateChat(c.Request().Context(), &store.Chat{
		UID:           shortuuid.New(),
		Title:         req.Title,
		ChatType:      chatType,
		ReplyStrategy: req.ReplyStrategy,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toChatResponse(chat))
}

func (s *APIV1Service) getChat(c *echo.Context) error {
	chat, err := s.findChat(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toChatResponse(chat))
}

func (s *APIV1Service) updateChat(c *echo.Context) error {
	chat, err := s.findChat(c)
	if err != nil {
		return err
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	update := &store.UpdateChat{UID: chat.UID}
	if req.Title != "" {
		update.Title = &req.Title
	}
	if req.ChatType != "" {
		chatType := store.ChatType(req.ChatType)
		if chatType != store.ChatTypeNormal && chatType != store.ChatTypeAssistant {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown chat type")
		}
		update.ChatType = &chatType
	}
	if req.ReplyStrategy != "" {
		update.ReplyStrategy = &req.ReplyStrategy
	}
	updated, err := s.Store.UpdateChat(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toChatResponse(updated))
}

func (s *APIV1Service) deleteChat(c *echo.Context) error {
	chat, err := s.findChat(c)
	if err != nil {
		return err
	}
	// Abort anything still streaming for this chat before the rows go away.
	if _, err := s.Engine.Cancel(c.Request().Context(), chat.UID, ""); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := s.Store.DeleteChat(c.Request().Context(), chat.UID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) upsertParticipant(c *echo.Context) error {
	chat, err := s.findChat(c)
	if err != nil {
		return err
	}
	var req participantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	ctx := c.Request().Context()
	switch {
	case req.CharacterUID != "":
		character, err := s.Store.GetCharacter(ctx, &store.FindCharacter{UID: &req.CharacterUID})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if character == nil {
			return echo.NewHTTPError(http.StatusNotFound, "character not found")
		}
		isActive := req.IsActive == nil || *req.IsActive
		if err := s.Store.UpsertChatCharacter(ctx, &store.ChatCharacter{
			ChatID:      chat.ID,
			CharacterID: character.ID,
			Position:    req.Position,
			IsActive:    isActive,
		}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	case req.PersonaUID != "":
		persona, err := s.Store.GetPersona(ctx, &store.FindPersona{UID: &req.PersonaUID})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if persona == nil {
			return echo.NewHTTPError(http.StatusNotFound, "persona not found")
		}
		if err := s.Store.UpsertChatPersona(ctx, &store.ChatPersona{
			ChatID:    chat.ID,
			PersonaID: persona.ID,
			Position:  req.Position,
		}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "characterUid or personaUid required")
	}
	return c.NoContent(http.StatusNoContent)
}
