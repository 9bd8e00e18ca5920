package store

// Persona is a human participant identity.
type Persona struct {
	ID          int32
	UID         string
	Name        string
	Description string
	CreatedTs   int64
	UpdatedTs   int64
}

// FindPersona filters for ListPersonas / GetPersona.
type FindPersona struct {
	ID  *int32
	UID *string
}

// UpdatePersona carries fields accepted by UpdatePersona.
type UpdatePersona struct {
	UID         string
	Name        *string
	Description *string
}
