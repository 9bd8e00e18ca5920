package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"

	"github.com/parleyhq/parley/store"
)

type characterRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	FirstMessage string `json:"firstMessage"`
}

type characterResponse struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	FirstMessage string `json:"firstMessage"`
	CreatedTs    int64  `json:"createdTs"`
	UpdatedTs    int64  `json:"updatedTs"`
}

type personaRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type personaResponse struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedTs   int64  `json:"createdTs"`
	UpdatedTs   int64  `json:"updatedTs"`
}

type connectionProfileRequest struct {
	Name      string `json:"name"`
	BaseURL   string `json:"baseUrl"`
	APIKey    string `json:"apiKey"`
	Model     string `json:"model"`
	IsDefault *bool  `json:"isDefault"`
}

type connectionProfileResponse struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	BaseURL   string `json:"baseUrl"`
	Model     string `json:"model"`
	IsDefault bool   `json:"isDefault"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type lorebookRequest struct {
	Name string `json:"name"`
}

type lorebookEntryRequest struct {
	Keys    string `json:"keys"`
	Content string `json:"content"`
}

type lorebookEntryResponse struct {
	ID        int32  `json:"id"`
	Keys      string `json:"keys"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

func (s *APIV1Service) registerRecordRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/characters", s.listCharacters)
	g.POST("/characters", s.createCharacter)
	g.PATCH("/characters/:uid", s.updateCharacter)
	g.DELETE("/characters/:uid", s.deleteCharacter)

	g.GET("/personas", s.listPersonas)
	g.POST("/personas", s.createPersona)
	g.PATCH("/personas/:uid", s.updatePersona)
	g.DELETE("/personas/:uid", s.deletePersona)

	g.GET("/connection-profiles", s.listConnectionProfiles)
	g.POST("/connection-profiles", s.createConnectionProfile)
	g.PATCH("/connection-profiles/:uid", s.updateConnectionProfile)
	g.DELETE("/connection-profiles/:uid", s.deleteConnectionProfile)

	g.GET("/lorebooks", s.listLorebooks)
	g.POST("/lorebooks", s.createLorebook)
	g.DELETE("/lorebooks/:uid", s.deleteLorebook)
	g.GET("/lorebooks/:uid/entries", s.listLorebookEntries)
	g.POST("/lorebooks/:uid/entries", s.createLorebookEntry)
	g.DELETE("/lorebooks/:uid/entries/:id", s.deleteLorebookEntry)
}

func toCharacterResponse(c *store.Character) characterResponse {
	return characterResponse{
		UID:          c.UID,
		Name:         c.Name,
		Description:  c.Description,
		FirstMessage: c.FirstMessage,
		CreatedTs:    c.CreatedTs,
		UpdatedTs:    c.UpdatedTs,
	}
}

func (s *APIV1Service) listCharacters(c *echo.Context) error {
	characters, err := s.Store.ListCharacters(c.Request().Context(), &store.FindCharacter{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]characterResponse, 0, len(characters))
	for _, ch := range characters {
		resp = append(resp, toCharacterResponse(ch))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createCharacter(c *echo.Context) error {
	var req characterRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	character, err := s.Store.CreateCharacter(c.Request().Context(), &store.Character{
		UID:          shortuuid.New(),
		Name:         req.Name,
		Description:  req.Description,
		FirstMessage: req.FirstMessage,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toCharacterResponse(character))
}

func (s *APIV1Service) updateCharacter(c *echo.Context) error {
	uid := c.Param("uid")
	var req characterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	update := &store.UpdateCharacter{UID: uid}
	if req.Name != "" {
		update.Name = &req.Name
	}
	if req.Description != "" {
		update.Description = &req.Description
	}
	if req.FirstMessage != "" {
		update.FirstMessage = &req.FirstMessage
	}
	character, err := s.Store.UpdateCharacter(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if character == nil {
		return echo.NewHTTPError(http.StatusNotFound, "character not found")
	}
	return c.JSON(http.StatusOK, toCharacterResponse(character))
}

func (s *APIV1Service) deleteCharacter(c *echo.Context) error {
	if err := s.Store.DeleteCharacter(c.Request().Context(), c.Param("uid")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func toPersonaResponse(p *store.Persona) personaResponse {
	return personaResponse{
		UID:         p.UID,
		Name:        p.Name,
		Description: p.Description,
		CreatedTs:   p.CreatedTs,
		UpdatedTs:   p.UpdatedTs,
	}
}

func (s *APIV1Service) listPersonas(c *echo.Context) error {
	personas, err := s.Store.ListPersonas(c.Request().Context(), &store.FindPersona{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]personaResponse, 0, len(personas))
	for _, p := range personas {
		resp = append(resp, toPersonaResponse(p))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createPersona(c *echo.Context) error {
	var req personaRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	persona, err := s.Store.CreatePersona(c.Request().Context(), &store.Persona{
		UID:         shortuuid.New(),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toPersonaResponse(persona))
}

func (s *APIV1Service) updatePersona(c *echo.Context) error {
	uid := c.Param("uid")
	var req personaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	update := &store.UpdatePersona{UID: uid}
	if req.Name != "" {
		update.Name = &req.Name
	}
	if req.Description != "" {
		update.Description = &req.Description
	}
	persona, err := s.Store.UpdatePersona(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if persona == nil {
		return echo.NewHTTPError(http.StatusNotFound, "persona not found")
	}
	return c.JSON(http.StatusOK, toPersonaResponse(persona))
}

func (s *APIV1Service) deletePersona(c *echo.Context) error {
	if err := s.Store.DeletePersona(c.Request().Context(), c.Param("uid")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func toConnectionProfileResponse(p *store.ConnectionProfile) connectionProfileResponse {
	// The API key never leaves the server.
	return connectionProfileResponse{
		UID:       p.UID,
		Name:      p.Name,
		BaseURL:   p.BaseURL,
		Model:     p.Model,
		IsDefault: p.IsDefault,
		CreatedTs: p.CreatedTs,
		UpdatedTs: p.UpdatedTs,
	}
}

func (s *APIV1Service) listConnectionProfiles(c *echo.Context) error {
	profiles, err := s.Store.ListConnectionProfiles(c.Request().Context(), &store.FindConnectionProfile{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]connectionProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		resp = append(resp, toConnectionProfileResponse(p))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createConnectionProfile(c *echo.Context) error {
	var req connectionProfileRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	isDefault := req.IsDefault != nil && *req.IsDefault
	profile, err := s.Store.CreateConnectionProfile(c.Request().Context(), &store.ConnectionProfile{
		UID:       shortuuid.New(),
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		APIKey:    req.APIKey,
		Model:     req.Model,
		IsDefault: isDefault,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toConnectionProfileResponse(profile))
}

func (s *APIV1Service) updateConnectionProfile(c *echo.Context) error {
	uid := c.Param("uid")
	var req connectionProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	update := &store.UpdateConnectionProfile{UID: uid}
	if req.Name != "" {
		update.Name = &req.Name
	}
	if req.BaseURL != "" {
		update.BaseURL = &req.BaseURL
	}
	if req.APIKey != "" {
		update.APIKey = &req.APIKey
	}
	if req.Model != "" {
		update.Model = &req.Model
	}
	if req.IsDefault != nil {
		update.IsDefault = req.IsDefault
	}
	profile, err := s.Store.UpdateConnectionProfile(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if profile == nil {
		return echo.NewHTTPError(http.StatusNotFound, "connection profile not found")
	}
	return c.JSON(http.StatusOK, toConnectionProfileResponse(profile))
}

func (s *APIV1Service) deleteConnectionProfile(c *echo.Context) error {
	if err := s.Store.DeleteConnectionProfile(c.Request().Context(), c.Param("uid")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) listLorebooks(c *echo.Context) error {
	lorebooks, err := s.Store.ListLorebooks(c.Request().Context(), &store.FindLorebook{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	type lorebookResponse struct {
		UID       string `json:"uid"`
		Name      string `json:"name"`
		CreatedTs int64  `json:"createdTs"`
	}
	resp := make([]lorebookResponse, 0, len(lorebooks))
	for _, lb := range lorebooks {
		resp = append(resp, lorebookResponse{UID: lb.UID, Name: lb.Name, CreatedTs: lb.CreatedTs})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createLorebook(c *echo.Context) error {
	var req lorebookRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	lorebook, err := s.Store.CreateLorebook(c.Request().Context(), &store.Lorebook{
		UID:  shortuuid.New(),
		Name: req.Name,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"uid":       lorebook.UID,
		"name":      lorebook.Name,
		"createdTs": lorebook.CreatedTs,
	})
}

func (s *APIV1Service) deleteLorebook(c *echo.Context) error {
	if err := s.Store.DeleteLorebook(c.Request().Context(), c.Param("uid")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) findLorebook(c *echo.Context) (*store.Lorebook, error) {
	uid := c.Param("uid")
	lorebook, err := s.Store.GetLorebook(c.Request().Context(), &store.FindLorebook{UID: &uid})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if lorebook == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "lorebook not found")
	}
	return lorebook, nil
}

func (s *APIV1Service) listLorebookEntries(c *echo.Context) error {
	lorebook, err := s.findLorebook(c)
	if err != nil {
		return err
	}
	entries, err := s.Store.ListLorebookEntries(c.Request().Context(), lorebook.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]lorebookEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, lorebookEntryResponse{
			ID:        e.ID,
			Keys:      e.Keys,
			Content:   e.Content,
			CreatedTs: e.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createLorebookEntry(c *echo.Context) error {
	lorebook, err := s.findLorebook(c)
	if err != nil {
		return err
	}
	var req lorebookEntryRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content required")
	}
	entry, err := s.Store.CreateLorebookEntry(c.Request().Context(), &store.LorebookEntry{
		LorebookID: lorebook.ID,
		Keys:       req.Keys,
		Content:    req.Content,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if s.LoreIndex != nil {
		if err := s.LoreIndex.UpsertEntry(c.Request().Context(), entry.ID, entry.Keys, entry.Content); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, lorebookEntryResponse{
		ID:        entry.ID,
		Keys:      entry.Keys,
		Content:   entry.Content,
		CreatedTs: entry.CreatedTs,
	})
}

func (s *APIV1Service) deleteLorebookEntry(c *echo.Context) error {
	rawID, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	if err := s.Store.DeleteLorebookEntry(c.Request().Context(), int32(rawID)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
