package store

// ConnectionProfile configures one pluggable text-generation backend.
type ConnectionProfile struct {
	ID        int32
	UID       string
	Name      string
	BaseURL   string
	APIKey    string
	Model     string
	IsDefault bool
	CreatedTs int64
	UpdatedTs int64
}

// FindConnectionProfile filters for ListConnectionProfiles.
type FindConnectionProfile struct {
	UID       *string
	IsDefault *bool
}

// UpdateConnectionProfile carries fields accepted by UpdateConnectionProfile.
type UpdateConnectionProfile struct {
	UID       string
	Name      *string
	BaseURL   *string
	APIKey    *string
	Model     *string
	IsDefault *bool
}
