package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestLoadTriggers_InlineRules(t *testing.T) {
	rules, err := LoadTriggers(TriggersConfig{
		Rules: []TriggerRule{{Phrases: []string{"привет"}, Replies: []string{"здарова"}}},
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].Phrases[0] != "привет" {
		t.Errorf("unexpected rules: %+v", rules)
	}
}

func TestLoadTriggers_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	raw := `rules:
  - phrases: ["сосал?", "сосал"]
    replies: ["Да"]
    rareReply: "Сосал, и что дальше?"
    rareChance: 0.1
  - phrases: ["летал?"]
    replies: ["Летал!", "Высоко летал!"]
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadTriggers(TriggersConfig{File: path}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].RareReply != "Сосал, и что дальше?" || rules[0].RareChance != 0.1 {
		t.Errorf("rare reply not parsed: %+v", rules[0])
	}
	if len(rules[1].Replies) != 2 {
		t.Errorf("replies not parsed: %+v", rules[1])
	}
}

func TestLoadTriggers_FileTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	raw := "rules:\n  - phrases: [\"из файла\"]\n    replies: [\"ок\"]\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadTriggers(TriggersConfig{
		File:  path,
		Rules: []TriggerRule{{Phrases: []string{"инлайн"}, Replies: []string{"нет"}}},
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].Phrases[0] != "из файла" {
		t.Errorf("file rules must win: %+v", rules)
	}
}

func TestLoadTriggers_InvalidRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	raw := "rules:\n  - phrases: [\"пусто\"]\n    replies: []\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTriggers(TriggersConfig{File: path}, testLogger()); err == nil {
		t.Error("expected error for rule without replies")
	}
}

func TestLoadTriggers_MissingFile(t *testing.T) {
	_, err := LoadTriggers(TriggersConfig{File: "/nonexistent/triggers.yaml"}, testLogger())
	if err == nil {
		t.Error("expected error for missing file")
	}
}
