package room

import (
	"slices"
	"time"
)

// Visibility controls who can see a room without being listed on it.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == Public || v == Private
}

// Room is a chat room. OwnerID never changes after creation.
type Room struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Visibility Visibility `json:"visibility"`
	OwnerID    string     `json:"ownerId"`
	AllowList  []string   `json:"allowList"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Allows reports whether userID is the owner or on the allow-list.
func (r *Room) Allows(userID string) bool {
	if userID == "" {
		return false
	}
	return r.OwnerID == userID || slices.Contains(r.AllowList, userID)
}

// Patch is a partial room update. A non-nil field replaces the stored
// value, so an empty AllowList clears it.
type Patch struct {
	Name       *string
	Visibility *Visibility
	AllowList  *[]string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Visibility == nil && p.AllowList == nil
}

// Message is a chat message stored in a room.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// normalizeAllowList drops empty entries and duplicates and sorts the rest.
func normalizeAllowList(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
