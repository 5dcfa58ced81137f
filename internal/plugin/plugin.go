// Package plugin manages the hook wiring into Claude Code: the hooks
// block in ~/.claude/settings.json and the standalone plugin
// artifacts under the data directory.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codelatch/codelatch/internal/config"
)

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Async   bool   `json:"async"`
}

type hookMatcher struct {
	Matcher *string       `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

// BuildHooks returns the hooks block registering this binary for the
// events the daemon understands. Notification is matched twice so
// both dialog kinds fire; Stop and the session events take no matcher.
func BuildHooks(binaryPath string) map[string][]hookMatcher {
	command := func(event string) []hookCommand {
		return []hookCommand{{
			Type:    "command",
			Command: fmt.Sprintf("%s hook %s", binaryPath, event),
			Async:   true,
		}}
	}
	matcher := func(value string) *string { return &value }

	return map[string][]hookMatcher{
		"Notification": {
			{Matcher: matcher("elicitation_dialog"), Hooks: command("Notification")},
			{Matcher: matcher("permission_prompt"), Hooks: command("Notification")},
		},
		"PostToolUseFailure": {
			{Matcher: matcher(""), Hooks: command("PostToolUseFailure")},
		},
		"Stop": {
			{Hooks: command("Stop")},
		},
		"SessionStart": {
			{Hooks: command("SessionStart")},
		},
		"SessionEnd": {
			{Hooks: command("SessionEnd")},
		},
	}
}

// InstallHooks merges the hooks block into the Claude settings file,
// preserving any unrelated settings already there.
func InstallHooks(binaryPath string) error {
	return installHooksAt(config.ClaudeSettingsPath(), binaryPath)
}

func installHooksAt(settingsPath, binaryPath string) error {
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	root := map[string]json.RawMessage{}
	if text, err := os.ReadFile(settingsPath); err == nil {
		if err := json.Unmarshal(text, &root); err != nil {
			return fmt.Errorf("parse claude settings: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read claude settings: %w", err)
	}

	hooks, err := json.Marshal(BuildHooks(binaryPath))
	if err != nil {
		return fmt.Errorf("encode hooks: %w", err)
	}
	root["hooks"] = hooks

	serialized, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("encode claude settings: %w", err)
	}
	if err := os.WriteFile(settingsPath, serialized, 0644); err != nil {
		return fmt.Errorf("write claude settings: %w", err)
	}
	return nil
}

// HooksInstalled reports whether the settings file carries a hooks
// block.
func HooksInstalled() (bool, error) {
	return hooksInstalledAt(config.ClaudeSettingsPath())
}

func hooksInstalledAt(settingsPath string) (bool, error) {
	text, err := os.ReadFile(settingsPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read claude settings: %w", err)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(text, &parsed); err != nil {
		return false, fmt.Errorf("parse claude settings: %w", err)
	}
	_, ok := parsed["hooks"]
	return ok, nil
}

// WritePluginArtifacts drops plugin.json and hooks.json under
// <data>/plugin for marketplace-style installs.
func WritePluginArtifacts(binaryPath string) error {
	return writePluginArtifactsAt(filepath.Join(config.DataDir(), "plugin"), binaryPath)
}

func writePluginArtifactsAt(dir, binaryPath string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create plugin dir: %w", err)
	}

	pluginJSON := map[string]interface{}{
		"name":        "codelatch",
		"description": "Remote supervision for Claude Code via Telegram",
		"version":     "0.1.0",
		"author":      map[string]string{"name": "codelatch"},
	}
	hooksJSON := map[string]interface{}{
		"description": "Codelatch remote supervision hooks",
		"hooks":       BuildHooks(binaryPath),
	}

	for name, value := range map[string]interface{}{
		"plugin.json": pluginJSON,
		"hooks.json":  hooksJSON,
	} {
		serialized, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), serialized, 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
