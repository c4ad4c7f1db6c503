package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderTurnMessages(t *testing.T) {
	c := MustDefault()

	got, err := c.Render("turn.webhook", map[string]any{"Player": "eric", "Game": "Alpha Game", "Turn": 12})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "Hey, eric, it's your turn in Alpha Game. The game is on turn 12"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got, err = c.Render("turn.pydt", map[string]any{
		"Player": "dan", "Leader": "Trajan", "Civilization": "Rome", "Game": "Beta", "Turn": 3,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "Hey, dan, Trajan is waiting for you to command Rome in Beta. The game is on turn 3"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderMissingKeyFails(t *testing.T) {
	c := MustDefault()
	if _, err := c.Render("turn.webhook", map[string]any{"Player": "eric"}); err == nil {
		t.Fatalf("expected error for missing template data")
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestDefaultKeys(t *testing.T) {
	c := MustDefault()
	for _, k := range []string{"turn.webhook", "turn.pydt", "bot.help", "bot.blame.one", "bot.blame.many", "bot.blame.none", "bot.counts"} {
		if !c.Has(k) {
			t.Fatalf("missing default key %s (have %v)", k, c.Keys())
		}
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.yaml", "turn:\n  webhook: \"{{.Player}} -> {{.Game}}\"\n")
	write("notes.txt", "ignored")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("turn.webhook", map[string]any{"Player": "eric", "Game": "G"})
	if err != nil || got != "eric -> G" {
		t.Fatalf("override = %q, %v", got, err)
	}
	if !c.Has("turn.pydt") {
		t.Fatalf("override dropped embedded keys")
	}

	write("b.yml", "turn:\n  webhook: again\n")
	if _, err := New(dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestRejectsNonStringLeaves(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("bot:\n  counts: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected error for integer leaf")
	}
}
