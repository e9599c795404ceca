package domain

// Direction is a voter's feedback on a resource.
type Direction string

// Vote directions. DirectionNone means the voter has no vote recorded.
const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection accepts only "up" and "down".
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionUp, DirectionDown:
		return Direction(s), true
	default:
		return DirectionNone, false
	}
}

// Tally is the derived feedback count for one resource.
type Tally struct {
	Up    int `json:"up"`
	Down  int `json:"down"`
	Score int `json:"score"`
}

// TallyVotes counts a voter->direction mapping.
func TallyVotes(votes map[string]Direction) Tally {
	var t Tally
	for _, d := range votes {
		switch d {
		case DirectionUp:
			t.Up++
		case DirectionDown:
			t.Down++
		}
	}
	t.Score = t.Up - t.Down
	return t
}
