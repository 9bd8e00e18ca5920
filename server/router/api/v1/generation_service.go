package v1

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/server/engine"
)

type generateRequest struct {
	// CharacterUID forces the first speaker instead of asking the scheduler.
	CharacterUID string `json:"characterUid"`
	// Triggered requests a single out-of-rotation reply.
	Triggered bool `json:"triggered"`
	// Once stops after one reply even when the rotation has further speakers.
	Once bool `json:"once"`
}

type cancelRequest struct {
	ChatUID      string `json:"chatUid"`
	GenerationID string `json:"generationId"`
}

func (s *APIV1Service) registerGenerationRoutes(e *echo.Echo) {
	e.POST("/api/v1/chats/:uid/generate", s.generate)
	e.GET("/api/v1/chats/:uid/events", s.streamChatEvents)
	e.POST("/api/v1/generations/cancel", s.cancelGeneration)
}

func (s *APIV1Service) generate(c *echo.Context) error {
	chat, err := s.findChat(c)
	if err != nil {
		return err
	}
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		// An empty body is a plain scheduler-driven turn.
		req = generateRequest{}
	}
	s.spawnTurn(chat.UID, engine.TurnOptions{
		CharacterUID: req.CharacterUID,
		Once:         req.Once,
		Triggered:    req.Triggered,
	})
	return c.JSON(http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *APIV1Service) cancelGeneration(c *echo.Context) error {
	var req cancelRequest
	if err := c.Bind(&req); err != nil || (req.ChatUID == "" && req.GenerationID == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "chatUid or generationId required")
	}
	cancelled, err := s.Engine.Cancel(c.Request().Context(), req.ChatUID, req.GenerationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"cancelled": cancelled})
}

func (s *APIV1Service) streamChatEvents(c *echo.Context) error {
	chat, err := s.findChat(c)
	if err != nil {
		return err
	}
	events, unsubscribe := s.Broker.Subscribe(chat.UID)
	defer unsubscribe()

	stream := broker.NewStream(c.Response())
	c.Response().WriteHeader(http.StatusOK)
	if err := stream.StreamEvents(c.Request().Context(), events); err != nil {
		// The client going away is the normal way this ends.
		return nil
	}
	return nil
}
