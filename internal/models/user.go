package models

// DisplayName derives the anonymous display name shown on logs and comments
// from an opaque user ID.
func DisplayName(userID string) string {
	short := userID
	if len(short) > 4 {
		short = short[:4]
	}
	return "Maker " + short
}
