package domain

import "time"

// Notification is a formatted announcement ready to be handed to a sink
type Notification struct {
	Announcement string    `json:"announcement"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Description  string    `json:"description"`
	Author       string    `json:"author"`
	AuthorURL    string    `json:"author_url,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Footer       string    `json:"footer,omitempty"`
	Color        int       `json:"color,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Fields       []Field   `json:"fields,omitempty"`
}

// Field is a titled block appended below the description
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// WithFields returns a copy of n with extra fields appended, leaving n intact
// so one formatted event can be shared across subscribers.
func (n Notification) WithFields(fields ...Field) Notification {
	out := n
	out.Fields = make([]Field, 0, len(n.Fields)+len(fields))
	out.Fields = append(out.Fields, n.Fields...)
	out.Fields = append(out.Fields, fields...)
	return out
}
