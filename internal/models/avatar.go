package models

// AvatarConfig describes the user's avatar. Every field has a default; partial
// updates merge over the existing config.
type AvatarConfig struct {
	Background string `bson:"background" json:"background"`
	Eyes       string `bson:"eyes" json:"eyes"`
	Mouth      string `bson:"mouth" json:"mouth"`
	Accessory  string `bson:"accessory" json:"accessory"`
}

// Style tokens the frontend knows how to render.
var (
	AvatarBackgrounds = []string{"#FF9F85", "#81B29A", "#F2CC8F", "#E07A5F", "#3D405B", "#D1495B", "#8D6E63", "#F4F1DE"}
	AvatarEyes        = []string{"dots", "wink", "stars", "glasses"}
	AvatarMouths      = []string{"smile", "oh", "cat", "tongue"}
	AvatarAccessories = []string{"none", "sprout", "headphones", "bow"}
)

// DefaultAvatar returns the avatar every user starts with.
func DefaultAvatar() AvatarConfig {
	return AvatarConfig{
		Background: "#FF9F85",
		Eyes:       "dots",
		Mouth:      "smile",
		Accessory:  "none",
	}
}

// AvatarPatch is a partial avatar update. Nil fields keep their current value.
type AvatarPatch struct {
	Background *string `json:"background,omitempty"`
	Eyes       *string `json:"eyes,omitempty"`
	Mouth      *string `json:"mouth,omitempty"`
	Accessory  *string `json:"accessory,omitempty"`
}

// Apply merges the patch into a copy of a and returns it.
func (p AvatarPatch) Apply(a AvatarConfig) AvatarConfig {
	if p.Background != nil {
		a.Background = *p.Background
	}
	if p.Eyes != nil {
		a.Eyes = *p.Eyes
	}
	if p.Mouth != nil {
		a.Mouth = *p.Mouth
	}
	if p.Accessory != nil {
		a.Accessory = *p.Accessory
	}
	return a
}
