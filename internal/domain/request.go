package domain

// Mode selects the persona flavour of the assistant for a session. The zero
// value means the neutral default persona.
type Mode string

const (
	ModeDefault Mode = ""
	ModeStory   Mode = "story"
	ModeQuiz    Mode = "quiz"
	ModeFunFact Mode = "funfact"
)

// ModeInfo describes a selectable mode for display.
type ModeInfo struct {
	Key   Mode
	Label string
	Blurb string
}

// Modes lists the selectable modes in display order.
var Modes = []ModeInfo{
	{Key: ModeStory, Label: "Story-telling", Blurb: "Narrative journeys through your favourite places."},
	{Key: ModeQuiz, Label: "Mini Quiz", Blurb: "Quick interactive trivia about your preferences."},
	{Key: ModeFunFact, Label: "Fun Facts", Blurb: "Bite-sized curiosities to brighten the chat."},
}

// Known reports whether m is one of the recognised modes or the default.
func (m Mode) Known() bool {
	switch m {
	case ModeDefault, ModeStory, ModeQuiz, ModeFunFact:
		return true
	}
	return false
}

// Label returns the display label of m, or "" for the default or an unknown mode.
func (m Mode) Label() string {
	for _, info := range Modes {
		if info.Key == m {
			return info.Label
		}
	}
	return ""
}

// Preferences personalise the assistant. All fields are optional.
type Preferences struct {
	Name        string `json:"name,omitempty"`
	Country     string `json:"country,omitempty"`
	Continent   string `json:"continent,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// PreferenceField names one field of Preferences.
type PreferenceField string

const (
	PrefName        PreferenceField = "name"
	PrefCountry     PreferenceField = "country"
	PrefContinent   PreferenceField = "continent"
	PrefDestination PreferenceField = "destination"
)

// PreferenceFields lists the preference fields in form order.
var PreferenceFields = []PreferenceField{PrefName, PrefCountry, PrefContinent, PrefDestination}

// Get returns the value of field f.
func (p Preferences) Get(f PreferenceField) string {
	switch f {
	case PrefName:
		return p.Name
	case PrefCountry:
		return p.Country
	case PrefContinent:
		return p.Continent
	case PrefDestination:
		return p.Destination
	}
	return ""
}

// With returns a copy of p with field f set to v. Unknown fields leave p unchanged.
func (p Preferences) With(f PreferenceField, v string) Preferences {
	switch f {
	case PrefName:
		p.Name = v
	case PrefCountry:
		p.Country = v
	case PrefContinent:
		p.Continent = v
	case PrefDestination:
		p.Destination = v
	}
	return p
}

// Complete reports whether every preference field is filled in.
func (p Preferences) Complete() bool {
	return p.Name != "" && p.Country != "" && p.Continent != "" && p.Destination != ""
}

// OutboundRequest is the wire payload posted by the client for one chat turn.
type OutboundRequest struct {
	Message string      `json:"message"`
	History []ChatTurn  `json:"history"`
	Prefs   Preferences `json:"prefs"`
	Mode    Mode        `json:"config,omitempty"`
}
