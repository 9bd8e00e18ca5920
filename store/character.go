package store

// Character is an LLM persona that can be added to chats.
type Character struct {
	ID           int32
	UID          string
	Name         string
	Description  string
	FirstMessage string
	CreatedTs    int64
	UpdatedTs    int64
}

// FindCharacter filters for ListCharacters / GetCharacter.
type FindCharacter struct {
	ID   *int32
	UID  *string
	Name *string
}

// UpdateCharacter carries fields accepted by UpdateCharacter.
type UpdateCharacter struct {
	UID          string
	Name         *string
	Description  *string
	FirstMessage *string
}
