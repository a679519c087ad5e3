package feed

import "time"

const feedTimestampLayout = "2006-01-02 15:04:05"

// Item is a single timeline entry in transport-friendly form. It only holds
// comparable fields so two items can be compared with ==.
type Item struct {
	ID           string `json:"id"`
	Author       string `json:"author"`
	Text         string `json:"text"`
	CreatedAt    string `json:"createdAt"`
	LikeCount    int    `json:"likeCount"`
	CommentCount int    `json:"commentCount"`
	ReshareCount int    `json:"reshareCount"`
	Liked        bool   `json:"liked"`
}

// Key returns the identity used to match an item across pages and snapshots.
func Key(item Item) string { return item.ID }

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (i Item) ParsedCreatedAt() time.Time {
	return parseTime(i.CreatedAt)
}

// PageQuery selects one page of a timeline.
type PageQuery struct {
	Timeline string
	Cursor   string
	Limit    int
}

// Page mirrors the payload returned by /api/timelines/{timeline}.
type Page struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"nextCursor"`
}

// Last reports whether no further pages follow this one.
func (p Page) Last() bool { return p.NextCursor == "" }

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(feedTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
