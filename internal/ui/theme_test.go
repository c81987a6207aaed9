package ui

import (
	"slices"
	"testing"
)

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	want := []string{"Nightfox", "Kanagawa", "Slate"}
	if !slices.Equal(names, want) {
		t.Fatalf("ThemeNames() = %v, want %v", names, want)
	}
	names[0] = "mutated"
	if ThemeNames()[0] != "Nightfox" {
		t.Fatal("ThemeNames must return a copy")
	}
}

func TestNextTheme(t *testing.T) {
	cases := map[string]string{
		"Nightfox": "Kanagawa",
		"Kanagawa": "Slate",
		"Slate":    "Nightfox",
		"unknown":  "Nightfox",
	}
	for in, want := range cases {
		if got := NextTheme(in); got != want {
			t.Fatalf("NextTheme(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetThemeFallback(t *testing.T) {
	if got := GetTheme("Dracula").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(unknown) = %q, want Nightfox", got)
	}
	if got := GetTheme("Slate").Name; got != "Slate" {
		t.Fatalf("GetTheme(Slate) = %q", got)
	}
}

func TestEveryThemeDefinesBadges(t *testing.T) {
	badges := []string{badgeDone, badgeTodo, badgePriority, badgeOnline, badgeOffline, badgeQueued}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, b := range badges {
			if th.StatusColors[b] == "" {
				t.Fatalf("theme %s has no color for badge %q", name, b)
			}
		}
	}
}
