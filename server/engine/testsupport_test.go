package engine

import (
	"context"
	"sync"

	"github.com/parleyhq/parley/plugin/llm"
	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/store"
)

// memDriver is an in-memory store.Driver for engine tests. Reads and writes
// copy rows so nothing observes mutations that were never persisted.
type memDriver struct {
	mu         sync.Mutex
	nextID     int32
	characters map[int32]*store.Character
	personas   map[int32]*store.Persona
	chats      map[int32]*store.Chat
	chatChars  []*store.ChatCharacter
	messages   map[int32]*store.ChatMessage
	profiles   map[int32]*store.ConnectionProfile
	lorebooks  map[int32]*store.Lorebook
	entries    map[int32]*store.LorebookEntry
}

func newMemDriver() *memDriver {
	return &memDriver{
		characters: map[int32]*store.Character{},
		personas:   map[int32]*store.Persona{},
		chats:      map[int32]*store.Chat{},
		messages:   map[int32]*store.ChatMessage{},
		profiles:   map[int32]*store.ConnectionProfile{},
		lorebooks:  map[int32]*store.Lorebook{},
		entries:    map[int32]*store.LorebookEntry{},
	}
}

func (d *memDriver) id() int32 {
	d.nextID++
	return d.nextID
}

func (d *memDriver) EnsureTables(context.Context) error { return nil }
func (d *memDriver) Close() error                       { return nil }

func copyMessage(m *store.ChatMessage) *store.ChatMessage {
	cp := *m
	if m.Metadata.Swipes != nil {
		sw := *m.Metadata.Swipes
		if sw.CurrentIdx != nil {
			idx := *sw.CurrentIdx
			sw.CurrentIdx = &idx
		}
		sw.History = append([]string(nil), sw.History...)
		cp.Metadata.Swipes = &sw
	}
	if m.Metadata.Reasoning != nil {
		r := *m.Metadata.Reasoning
		cp.Metadata.Reasoning = &r
	}
	return &cp
}

func (d *memDriver) CreateCharacter(_ context.Context, create *store.Character) (*store.Character, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.id()
	cp := *create
	d.characters[cp.ID] = &cp
	return create, nil
}

func (d *memDriver) ListCharacters(_ context.Context, find *store.FindCharacter) ([]*store.Character, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.Character
	for _, c := range d.characters {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.UID != nil && c.UID != *find.UID {
			continue
		}
		if find.Name != nil && c.Name != *find.Name {
			continue
		}
		cp := *c
		list = append(list, &cp)
	}
	return list, nil
}

func (d *memDriver) UpdateCharacter(_ context.Context, update *store.UpdateCharacter) (*store.Character, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.characters {
		if c.UID == update.UID {
			if update.Name != nil {
				c.Name = *update.Name
			}
			if update.Description != nil {
				c.Description = *update.Description
			}
			if update.FirstMessage != nil {
				c.FirstMessage = *update.FirstMessage
			}
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *memDriver) DeleteCharacter(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, c := range d.characters {
		if c.UID == uid {
			delete(d.characters, id)
		}
	}
	return nil
}

func (d *memDriver) CreatePersona(_ context.Context, create *store.Persona) (*store.Persona, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.id()
	cp := *create
	d.personas[cp.ID] = &cp
	return create, nil
}

func (d *memDriver) ListPersonas(_ context.Context, find *store.FindPersona) ([]*store.Persona, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.Persona
	for _, p := range d.personas {
		if find.ID != nil && p.ID != *find.ID {
			continue
		}
		if find.UID != nil && p.UID != *find.UID {
			continue
		}
		cp := *p
		list = append(list, &cp)
	}
	return list, nil
}

func (d *memDriver) UpdatePersona(_ context.Context, update *store.UpdatePersona) (*store.Persona, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.personas {
		if p.UID == update.UID {
			if update.Name != nil {
				p.Name = *update.Name
			}
			if update.Description != nil {
				p.Description = *update.Description
			}
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *memDriver) DeletePersona(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, p := range d.personas {
		if p.UID == uid {
			delete(d.personas, id)
		}
	}
	return nil
}

func (d *memDriver) CreateChat(_ context.Context, create *store.Chat) (*store.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.id()
	cp := *create
	d.chats[cp.ID] = &cp
	return create, nil
}

func (d *memDriver) ListChats(_ context.Context, find *store.FindChat) ([]*store.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.Chat
	for _, c := range d.chats {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.UID != nil && c.UID != *find.UID {
			continue
		}
		cp := *c
		list = append(list, &cp)
	}
	return list, nil
}

func (d *memDriver) UpdateChat(_ context.Context, update *store.UpdateChat) (*store.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.chats {
		if c.UID == update.UID {
			if update.Title != nil {
				c.Title = *update.Title
			}
			if update.ChatType != nil {
				c.ChatType = *update.ChatType
			}
			if update.ReplyStrategy != nil {
				c.ReplyStrategy = *update.ReplyStrategy
			}
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *memDriver) DeleteChat(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, c := range d.chats {
		if c.UID == uid {
			delete(d.chats, id)
		}
	}
	return nil
}

func (d *memDriver) UpsertChatCharacter(_ context.Context, upsert *store.ChatCharacter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cc := range d.chatChars {
		if cc.ChatID == upsert.ChatID && cc.CharacterID == upsert.CharacterID {
			cc.Position = upsert.Position
			cc.IsActive = upsert.IsActive
			return nil
		}
	}
	cp := *upsert
	d.chatChars = append(d.chatChars, &cp)
	return nil
}

func (d *memDriver) ListChatCharacters(_ context.Context, chatID int32) ([]*store.ChatCharacter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.ChatCharacter
	for _, cc := range d.chatChars {
		if cc.ChatID == chatID {
			cp := *cc
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (d *memDriver) UpsertChatPersona(context.Context, *store.ChatPersona) error { return nil }
func (d *memDriver) ListChatPersonas(context.Context, int32) ([]*store.ChatPersona, error) {
	return nil, nil
}

func (d *memDriver) CreateChatMessage(_ context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.id()
	d.messages[create.ID] = copyMessage(create)
	return create, nil
}

func (d *memDriver) ListChatMessages(_ context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.ChatMessage
	for i := int32(1); i <= d.nextID; i++ {
		m, ok := d.messages[i]
		if !ok {
			continue
		}
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.ChatID != nil && m.ChatID != *find.ChatID {
			continue
		}
		if find.IsGenerating != nil && m.IsGenerating != *find.IsGenerating {
			continue
		}
		list = append(list, copyMessage(m))
	}
	return list, nil
}

func (d *memDriver) UpdateChatMessage(_ context.Context, update *store.UpdateChatMessage) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.messages[update.ID]
	if !ok {
		return false, nil
	}
	if update.ExpectGenerating && !m.IsGenerating {
		return false, nil
	}
	if update.Content != nil {
		m.Content = *update.Content
	}
	if update.IsGenerating != nil {
		m.IsGenerating = *update.IsGenerating
	}
	if update.GenerationID != nil {
		m.GenerationID = *update.GenerationID
	}
	if update.IsHidden != nil {
		m.IsHidden = *update.IsHidden
	}
	if update.Metadata != nil {
		m.Metadata = copyMessage(&store.ChatMessage{Metadata: *update.Metadata}).Metadata
	}
	return true, nil
}

func (d *memDriver) DeleteChatMessage(_ context.Context, id int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.messages, id)
	return nil
}

func (d *memDriver) CreateConnectionProfile(_ context.Context, create *store.ConnectionProfile) (*store.ConnectionProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.id()
	cp := *create
	d.profiles[cp.ID] = &cp
	return create, nil
}

func (d *memDriver) ListConnectionProfiles(_ context.Context, find *store.FindConnectionProfile) ([]*store.ConnectionProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.ConnectionProfile
	for _, p := range d.profiles {
		if find.UID != nil && p.UID != *find.UID {
			continue
		}
		if find.IsDefault != nil && p.IsDefault != *find.IsDefault {
			continue
		}
		cp := *p
		list = append(list, &cp)
	}
	return list, nil
}

func (d *memDriver) UpdateConnectionProfile(_ context.Context, update *store.UpdateConnectionProfile) (*store.ConnectionProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.profiles {
		if p.UID == update.UID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *memDriver) DeleteConnectionProfile(context.Context, string) error { return nil }

func (d *memDriver) CreateLorebook(_ context.Context, create *store.Lorebook) (*store.Lorebook, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.id()
	cp := *create
	d.lorebooks[cp.ID] = &cp
	return create, nil
}

func (d *memDriver) ListLorebooks(_ context.Context, find *store.FindLorebook) ([]*store.Lorebook, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.Lorebook
	for _, lb := range d.lorebooks {
		if find.ID != nil && lb.ID != *find.ID {
			continue
		}
		if find.UID != nil && lb.UID != *find.UID {
			continue
		}
		cp := *lb
		list = append(list, &cp)
	}
	return list, nil
}

func (d *memDriver) DeleteLorebook(context.Context, string) error { return nil }

func (d *memDriver) CreateLorebookEntry(_ context.Context, create *store.LorebookEntry) (*store.LorebookEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.id()
	cp := *create
	d.entries[cp.ID] = &cp
	return create, nil
}

func (d *memDriver) ListLorebookEntries(_ context.Context, lorebookID int32) ([]*store.LorebookEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.LorebookEntry
	for _, e := range d.entries {
		if e.LorebookID == lorebookID {
			cp := *e
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (d *memDriver) DeleteLorebookEntry(context.Context, int32) error { return nil }

// fakeProvider scripts completions per Generate call, in order.
type fakeProvider struct {
	mu          sync.Mutex
	completions []*llm.Completion
	requests    []*llm.Request
}

func (p *fakeProvider) Generate(_ context.Context, req *llm.Request) (*llm.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.completions) == 0 {
		return &llm.Completion{Text: "fallback"}, nil
	}
	next := p.completions[0]
	p.completions = p.completions[1:]
	return next, nil
}

func streamOf(deltas ...string) *llm.Completion {
	return &llm.Completion{
		Stream: func(ctx context.Context, onDelta func(string) error) error {
			for _, d := range deltas {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := onDelta(d); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type testEngine struct {
	engine   *Engine
	store    *store.Store
	driver   *memDriver
	registry *Registry
	broker   *broker.Broker
	provider *fakeProvider
}

func newTestEngine(opts ...Option) *testEngine {
	driver := newMemDriver()
	st := store.New(driver)
	reg := NewRegistry()
	b := broker.New()
	provider := &fakeProvider{}
	return &testEngine{
		engine:   New(st, reg, b, provider, opts...),
		store:    st,
		driver:   driver,
		registry: reg,
		broker:   b,
		provider: provider,
	}
}

// seedChat creates a chat with the given characters as active participants
// in slice order and a single opening user message.
func (te *testEngine) seedChat(ctx context.Context, chatType store.ChatType, names ...string) (*store.Chat, []*store.Character) {
	chat, _ := te.store.CreateChat(ctx, &store.Chat{
		UID:           "chat-" + string(chatType),
		Title:         "Test Chat",
		ChatType:      chatType,
		ReplyStrategy: "round_robin",
	})
	var characters []*store.Character
	for i, name := range names {
		c, _ := te.store.CreateCharacter(ctx, &store.Character{UID: "char-" + name, Name: name})
		_ = te.store.UpsertChatCharacter(ctx, &store.ChatCharacter{
			ChatID:      chat.ID,
			CharacterID: c.ID,
			Position:    int32(i),
			IsActive:    true,
		})
		characters = append(characters, c)
	}
	_, _ = te.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:  chat.ID,
		Role:    store.RoleUser,
		Content: "hello everyone",
	})
	return chat, characters
}
