// Package worktree generates branch names and worktree paths for
// model.Worktree (SPEC_FULL.md §10 "Worktree branch naming template").
// Spec.md names the Worktree entity but is silent on a naming policy;
// grounded on the teacher's internal/git/template.go path-templating logic,
// generalized from the teacher's string session ids to uuid.UUID session
// ids and from a repo-clone branch name to a generated default.
package worktree

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// pathSanitizer replaces filesystem-unsafe characters with dashes.
var pathSanitizer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "-",
	"\"", "-",
	"<", "-",
	">", "-",
	"|", "-",
	"@", "-",
	"#", "-",
	" ", "-",
)

// consecutiveDashes collapses runs of two or more dashes to one.
var consecutiveDashes = regexp.MustCompile(`-{2,}`)

// sanitizeForPath converts s to a safe path/branch component: unsafe
// characters become dashes, dash runs collapse, and leading/trailing dashes
// are trimmed.
func sanitizeForPath(s string) string {
	result := pathSanitizer.Replace(s)
	result = consecutiveDashes.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// DefaultBranchTemplate is used when a project carries no explicit
// worktree branch template (spec.md is silent on a default; this one keeps
// branches grouped under a common prefix and unique per session).
const DefaultBranchTemplate = "session/{short-id}"

// DefaultPathTemplate places worktrees alongside the repo, one directory
// per session, under a reserved subdirectory so Discover-equivalent
// cleanup sweeps can recognize them.
const DefaultPathTemplate = "{repo-root}/.paneboard-worktrees/{branch}"

// PlanOptions is the pure input to Generate.
type PlanOptions struct {
	RepoPath   string
	SessionID  uuid.UUID
	BranchTmpl string // empty uses DefaultBranchTemplate
	PathTmpl   string // empty uses DefaultPathTemplate
}

// Plan is the deterministic output of expanding a branch/path template pair
// for one session against one repo.
type Plan struct {
	Branch       string
	WorktreePath string
}

// shortID returns the first 8 hex characters of id, for compact,
// human-legible branch/path names (spec.md §3's Worktree.Branch has no
// length constraint, but the teacher's convention favors short ids).
func shortID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// Generate expands opts' branch and path templates into a Plan. Unknown
// `{placeholders}` are left as-is in the resolved string, matching the
// teacher's template behavior. Relative resolved paths are joined against
// RepoPath.
//
// Templates are trusted input from the project's own configuration; no
// path-containment validation is performed beyond filepath.Clean, matching
// the teacher's template.go (a malicious template is self-inflicted, since
// the user who configures it is the same user who runs it).
func Generate(opts PlanOptions) Plan {
	branchTmpl := opts.BranchTmpl
	if branchTmpl == "" {
		branchTmpl = DefaultBranchTemplate
	}
	pathTmpl := opts.PathTmpl
	if pathTmpl == "" {
		pathTmpl = DefaultPathTemplate
	}

	repoName := filepath.Base(opts.RepoPath)
	sid := shortID(opts.SessionID)

	branchReplacer := strings.NewReplacer(
		"{repo-name}", sanitizeForPath(repoName),
		"{short-id}", sid,
		"{session-id}", opts.SessionID.String(),
	)
	branch := branchReplacer.Replace(branchTmpl)

	pathReplacer := strings.NewReplacer(
		"{repo-name}", repoName,
		"{repo-root}", opts.RepoPath,
		"{branch}", sanitizeForPath(branch),
		"{short-id}", sid,
		"{session-id}", opts.SessionID.String(),
	)
	resolved := pathReplacer.Replace(pathTmpl)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(opts.RepoPath, resolved)
	}
	resolved = filepath.Clean(resolved)

	return Plan{Branch: branch, WorktreePath: resolved}
}

// String renders a Plan for logging.
func (p Plan) String() string {
	return fmt.Sprintf("branch=%s path=%s", p.Branch, p.WorktreePath)
}
