package store

// Lorebook groups world-info entries that enrich prompt context.
type Lorebook struct {
	ID        int32
	UID       string
	Name      string
	CreatedTs int64
}

// LorebookEntry is one keyed snippet of world information.
type LorebookEntry struct {
	ID         int32
	LorebookID int32
	Keys       string // comma-separated trigger keywords
	Content    string
	CreatedTs  int64
}

// FindLorebook filters for ListLorebooks.
type FindLorebook struct {
	ID  *int32
	UID *string
}
