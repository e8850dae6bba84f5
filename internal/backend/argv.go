// Package backend implements the Backend contract of spec.md §4.3: a
// capability set (check_available, ensure_ready, spawn, adopt, discover,
// resize, kill, detach, is_dead) that Session holds by interface so future
// non-local backends (SSH, container) can be added without touching
// Session. LocalMuxBackend is the only implementation this system ships,
// built on internal/mux.Client (grounded on the teacher's process-spawning
// conventions in internal/session, generalized to the mux-pane model).
package backend

import "strings"

// DefaultPermissionMode is used when SessionConfig.PermissionMode is unset
// (spec.md §4.3, §8 scenario 1).
const DefaultPermissionMode = "dontAsk"

// SessionConfig is the pure input to BuildArgv (spec.md §4.3 "Argument
// assembly").
type SessionConfig struct {
	ResumeToken       string
	SessionID         string
	PermissionMode    string
	AllowedTools      []string
	DisallowedTools   []string
	ToolsString       string
	AppendSystemPrompt string
}

// BuildArgv assembles the agent's argv deterministically: same config,
// byte-identical argv (spec.md §7 "Testable Properties"). Only one of
// --resume/--session-id is ever emitted, with --resume taking precedence.
func BuildArgv(cfg SessionConfig) []string {
	var argv []string

	switch {
	case cfg.ResumeToken != "":
		argv = append(argv, "--resume", cfg.ResumeToken)
	case cfg.SessionID != "":
		argv = append(argv, "--session-id", cfg.SessionID)
	}

	mode := cfg.PermissionMode
	if mode == "" {
		mode = DefaultPermissionMode
	}
	argv = append(argv, "--permission-mode", mode)

	if len(cfg.AllowedTools) > 0 {
		argv = append(argv, "--allowed-tools", strings.Join(cfg.AllowedTools, " "))
	}
	if len(cfg.DisallowedTools) > 0 {
		argv = append(argv, "--disallowed-tools", strings.Join(cfg.DisallowedTools, " "))
	}
	if cfg.ToolsString != "" {
		argv = append(argv, "--tools", cfg.ToolsString)
	}
	if cfg.AppendSystemPrompt != "" {
		argv = append(argv, "--append-system-prompt", cfg.AppendSystemPrompt)
	}

	return argv
}

// shellSafeChars are the characters ShellEscape passes through unquoted
// (spec.md §7 "Boundary behaviors: Shell-escape").
const shellSafeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-./:=,"

// ShellEscape renders s safe for inclusion in a single POSIX shell command
// line: the empty string becomes `''`; a string made up only of
// shellSafeChars passes through unchanged; anything else is single-quoted
// with embedded single quotes escaped as '\''.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if isShellSafe(s) {
		return s
	}
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			sb.WriteString(`'\''`)
		} else {
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

func isShellSafe(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(shellSafeChars, r) {
			return false
		}
	}
	return true
}

// ShellJoin escapes and space-joins argv into a single command line
// suitable for a mux window target (e.g. `new-window ... -- <line>`).
func ShellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = ShellEscape(a)
	}
	return strings.Join(parts, " ")
}
