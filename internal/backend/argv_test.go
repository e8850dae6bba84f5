package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgv_Minimal(t *testing.T) {
	got := BuildArgv(SessionConfig{})
	assert.Equal(t, []string{"--permission-mode", "dontAsk"}, got)
}

func TestBuildArgv_ResumePrecedence(t *testing.T) {
	got := BuildArgv(SessionConfig{ResumeToken: "R", SessionID: "S"})
	assert.Equal(t, []string{"--resume", "R", "--permission-mode", "dontAsk"}, got)
}

func TestBuildArgv_Full(t *testing.T) {
	got := BuildArgv(SessionConfig{
		SessionID:          "id-1",
		PermissionMode:     "plan",
		AllowedTools:       []string{"Read"},
		DisallowedTools:    []string{"Edit"},
		ToolsString:        "default",
		AppendSystemPrompt: "Focus",
	})
	assert.Equal(t, []string{
		"--session-id", "id-1",
		"--permission-mode", "plan",
		"--allowed-tools", "Read",
		"--disallowed-tools", "Edit",
		"--tools", "default",
		"--append-system-prompt", "Focus",
	}, got)
}

func TestBuildArgv_IsPure(t *testing.T) {
	cfg := SessionConfig{SessionID: "x", AllowedTools: []string{"Read", "Grep"}}
	a := BuildArgv(cfg)
	b := BuildArgv(cfg)
	assert.Equal(t, a, b)
}

func TestShellEscape(t *testing.T) {
	assert.Equal(t, "''", ShellEscape(""))
	assert.Equal(t, "abc123_-./:=,", ShellEscape("abc123_-./:=,"))
	assert.Equal(t, `'hello world'`, ShellEscape("hello world"))
	assert.Equal(t, `'it'\''s'`, ShellEscape("it's"))
}

func TestShellJoin(t *testing.T) {
	got := ShellJoin([]string{"claude", "--resume", "r with space"})
	assert.Equal(t, "claude --resume 'r with space'", got)
}
