package models

// JourneySettings is the single per-user mutable document: journey title,
// chosen circle, avatar and the cached AI persona summary. Updates are always
// field-level merges, never whole-document replaces.
type JourneySettings struct {
	UserID      string       `bson:"user_id" json:"user_id"`
	Title       string       `bson:"title" json:"title"`
	Description string       `bson:"description" json:"description"`
	Category    string       `bson:"category,omitempty" json:"category,omitempty"`
	Avatar      AvatarConfig `bson:"avatar" json:"avatar"`
	AIPersona   string       `bson:"ai_persona,omitempty" json:"ai_persona,omitempty"`
}

// DefaultSettings returns the settings a user sees before onboarding completes.
func DefaultSettings(userID string) JourneySettings {
	return JourneySettings{
		UserID:      userID,
		Title:       "My Journey",
		Description: "Sequential Documenting",
		Avatar:      DefaultAvatar(),
	}
}

// SettingsPatch is a partial update to JourneySettings. Nil fields are left
// untouched by the merge.
type SettingsPatch struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Category    *string      `json:"category,omitempty"`
	Avatar      *AvatarPatch `json:"avatar,omitempty"`
	AIPersona   *string      `json:"ai_persona,omitempty"`
}

// Apply merges the patch into a copy of s and returns it.
func (p SettingsPatch) Apply(s JourneySettings) JourneySettings {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Avatar != nil {
		s.Avatar = p.Avatar.Apply(s.Avatar)
	}
	if p.AIPersona != nil {
		s.AIPersona = *p.AIPersona
	}
	return s
}

// IsZero reports whether the patch changes nothing.
func (p SettingsPatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Avatar == nil && p.AIPersona == nil
}

// StringPtr is a convenience for building patches.
func StringPtr(s string) *string { return &s }
