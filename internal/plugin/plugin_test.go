package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildHooksRegistersAllEvents(t *testing.T) {
	hooks := BuildHooks("/usr/local/bin/codelatch")
	for _, event := range []string{"Notification", "PostToolUseFailure", "Stop", "SessionStart", "SessionEnd"} {
		if _, ok := hooks[event]; !ok {
			t.Errorf("missing %s", event)
		}
	}
	if len(hooks["Notification"]) != 2 {
		t.Fatalf("Notification matchers = %d, want 2", len(hooks["Notification"]))
	}
	if got := *hooks["Notification"][0].Matcher; got != "elicitation_dialog" {
		t.Errorf("first matcher = %q", got)
	}
	if got := *hooks["Notification"][1].Matcher; got != "permission_prompt" {
		t.Errorf("second matcher = %q", got)
	}
	if hooks["Stop"][0].Matcher != nil {
		t.Error("Stop should have no matcher")
	}
	cmd := hooks["Stop"][0].Hooks[0]
	if cmd.Command != "/usr/local/bin/codelatch hook Stop" || !cmd.Async || cmd.Type != "command" {
		t.Errorf("stop hook = %+v", cmd)
	}
}

func TestInstallHooksCreatesSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude", "settings.json")
	if err := installHooksAt(path, "/opt/codelatch"); err != nil {
		t.Fatal(err)
	}
	installed, err := hooksInstalledAt(path)
	if err != nil || !installed {
		t.Fatalf("installed = %v, %v", installed, err)
	}
}

func TestInstallHooksPreservesOtherSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"model":"opus","env":{"FOO":"bar"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := installHooksAt(path, "/opt/codelatch"); err != nil {
		t.Fatal(err)
	}

	text, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(text, &parsed); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"model", "env", "hooks"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("missing key %q after install", key)
		}
	}
}

func TestInstallHooksRejectsMalformedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := installHooksAt(path, "/opt/codelatch"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHooksInstalledMissingFile(t *testing.T) {
	installed, err := hooksInstalledAt(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || installed {
		t.Errorf("installed = %v, %v", installed, err)
	}
}

func TestWritePluginArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plugin")
	if err := writePluginArtifactsAt(dir, "/opt/codelatch"); err != nil {
		t.Fatal(err)
	}

	pluginText, err := os.ReadFile(filepath.Join(dir, "plugin.json"))
	if err != nil {
		t.Fatal(err)
	}
	var pluginJSON struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Version     string `json:"version"`
	}
	if err := json.Unmarshal(pluginText, &pluginJSON); err != nil {
		t.Fatal(err)
	}
	if pluginJSON.Name != "codelatch" || pluginJSON.Version != "0.1.0" {
		t.Errorf("plugin.json = %+v", pluginJSON)
	}

	hooksText, err := os.ReadFile(filepath.Join(dir, "hooks.json"))
	if err != nil {
		t.Fatal(err)
	}
	var hooksJSON struct {
		Description string                     `json:"description"`
		Hooks       map[string]json.RawMessage `json:"hooks"`
	}
	if err := json.Unmarshal(hooksText, &hooksJSON); err != nil {
		t.Fatal(err)
	}
	if hooksJSON.Description != "Codelatch remote supervision hooks" {
		t.Errorf("description = %q", hooksJSON.Description)
	}
	if _, ok := hooksJSON.Hooks["SessionStart"]; !ok {
		t.Error("hooks.json missing SessionStart")
	}
}
