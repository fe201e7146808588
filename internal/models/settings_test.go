package models

import "testing"

func TestSettingsPatchApplyPartial(t *testing.T) {
	base := DefaultSettings("u1")
	base.Category = "music"

	got := SettingsPatch{Title: StringPtr("Practice Diary")}.Apply(base)

	if got.Title != "Practice Diary" {
		t.Errorf("title not applied: %q", got.Title)
	}
	if got.Category != "music" || got.Description != base.Description {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.Avatar != base.Avatar {
		t.Errorf("avatar changed by unrelated patch: %+v", got.Avatar)
	}
}

func TestSettingsPatchIsZero(t *testing.T) {
	if !(SettingsPatch{}).IsZero() {
		t.Error("empty patch should be zero")
	}
	if (SettingsPatch{Category: StringPtr("")}).IsZero() {
		t.Error("a set-to-empty field is still a change")
	}
}

func TestAvatarPatchMergesOverExisting(t *testing.T) {
	// Changing only the eyes keeps every other part of the current style.
	cur := AvatarConfig{Background: "#81B29A", Eyes: "dots", Mouth: "cat", Accessory: "bow"}

	got := AvatarPatch{Eyes: StringPtr("wink")}.Apply(cur)

	want := cur
	want.Eyes = "wink"
	if got != want {
		t.Errorf("expected %+v, got %+v", got, want)
	}
}

func TestAvatarTokensAreRenderable(t *testing.T) {
	for _, set := range [][]string{AvatarBackgrounds, AvatarEyes, AvatarMouths, AvatarAccessories} {
		if len(set) == 0 {
			t.Fatal("empty avatar token set")
		}
		for _, tok := range set {
			if tok == "" {
				t.Fatal("empty avatar token")
			}
		}
	}

	def := DefaultAvatar()
	if def.Background != AvatarBackgrounds[0] || def.Eyes != "dots" || def.Mouth != "smile" || def.Accessory != "none" {
		t.Errorf("default avatar drifted from token sets: %+v", def)
	}
}

func TestDisplayNameDerivation(t *testing.T) {
	cases := []struct {
		userID string
		want   string
	}{
		{"abcd1234-5678", "Maker abcd"},
		{"ab", "Maker ab"},
	}
	for _, tc := range cases {
		if got := DisplayName(tc.userID); got != tc.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.userID, got, tc.want)
		}
	}
}

func TestLogLikedBy(t *testing.T) {
	l := Log{Likes: []string{"u1", "u2"}}
	if !l.LikedBy("u1") || l.LikedBy("u3") {
		t.Errorf("LikedBy membership wrong for %v", l.Likes)
	}
}
