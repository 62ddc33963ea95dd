// Package rooms assigns treatment rooms to candidate slots with a
// default-then-fallback policy.
package rooms

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Room is a treatment room. Rooms are deactivated independently of any
// provider schedule.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Assignment is the room chosen for one candidate time.
type Assignment struct {
	Room      Room `json:"room"`
	IsDefault bool `json:"is_default"`
}

// TakenSet records, per room, the minute offsets already occupied on a date.
type TakenSet map[uuid.UUID]map[int]bool

// Taken reports whether the room is occupied at the given start minute.
func (t TakenSet) Taken(roomID uuid.UUID, startMin int) bool {
	return t[roomID][startMin]
}

// Assign picks the room for a candidate start time: the provider's default
// room when active and free, otherwise the first free active room in
// ascending id order. ok is false when every room is occupied, in which case
// the time is not offered at all.
func Assign(startMin int, active []Room, defaultRoomID uuid.UUID, taken TakenSet) (Assignment, bool) {
	ordered := make([]Room, 0, len(active))
	for _, room := range active {
		if room.Active {
			ordered = append(ordered, room)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	for _, room := range ordered {
		if room.ID == defaultRoomID && !taken.Taken(room.ID, startMin) {
			return Assignment{Room: room, IsDefault: true}, true
		}
	}
	for _, room := range ordered {
		if room.ID == defaultRoomID {
			continue
		}
		if !taken.Taken(room.ID, startMin) {
			return Assignment{Room: room, IsDefault: false}, true
		}
	}
	return Assignment{}, false
}
