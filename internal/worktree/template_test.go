package worktree

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerate_Defaults(t *testing.T) {
	id := uuid.MustParse("12345678-1234-1234-1234-123456789abc")
	p := Generate(PlanOptions{RepoPath: "/home/user/repo", SessionID: id})

	assert.Equal(t, "session/12345678", p.Branch)
	assert.Equal(t, filepath.Clean("/home/user/repo/.paneboard-worktrees/session-12345678"), p.WorktreePath)
}

func TestGenerate_CustomBranchTemplate(t *testing.T) {
	id := uuid.MustParse("12345678-1234-1234-1234-123456789abc")
	p := Generate(PlanOptions{
		RepoPath:   "/home/user/repo",
		SessionID:  id,
		BranchTmpl: "wip/{repo-name}/{short-id}",
	})
	assert.Equal(t, "wip/repo/12345678", p.Branch)
}

func TestGenerate_UnsafeBranchCharsSanitizedInPath(t *testing.T) {
	id := uuid.New()
	p := Generate(PlanOptions{
		RepoPath:   "/repo",
		SessionID:  id,
		BranchTmpl: "feature/weird name:here",
	})
	assert.Equal(t, "feature/weird name:here", p.Branch)
	assert.NotContains(t, p.WorktreePath, ":")
	assert.NotContains(t, p.WorktreePath, " ")
}

func TestGenerate_RelativePathTemplateJoinedAgainstRepoRoot(t *testing.T) {
	id := uuid.New()
	p := Generate(PlanOptions{
		RepoPath:  "/repo",
		SessionID: id,
		PathTmpl:  "../worktrees/{branch}",
	})
	assert.True(t, filepath.IsAbs(p.WorktreePath))
	assert.Equal(t, filepath.Clean("/worktrees/"+sanitizeForPath(p.Branch)), p.WorktreePath)
}

func TestGenerate_AbsolutePathTemplateUsedVerbatim(t *testing.T) {
	id := uuid.New()
	p := Generate(PlanOptions{
		RepoPath:  "/repo",
		SessionID: id,
		PathTmpl:  "/var/tmp/worktrees/{branch}",
	})
	assert.Equal(t, filepath.Clean("/var/tmp/worktrees/"+sanitizeForPath(p.Branch)), p.WorktreePath)
}

func TestGenerate_UnknownPlaceholderLeftAsIs(t *testing.T) {
	id := uuid.New()
	p := Generate(PlanOptions{
		RepoPath:   "/repo",
		SessionID:  id,
		BranchTmpl: "{unknown-var}/{short-id}",
	})
	assert.Contains(t, p.Branch, "{unknown-var}")
}

func TestGenerate_IsDeterministic(t *testing.T) {
	opts := PlanOptions{RepoPath: "/repo", SessionID: uuid.New(), BranchTmpl: "x/{short-id}"}
	a := Generate(opts)
	b := Generate(opts)
	assert.Equal(t, a, b)
}

func TestSanitizeForPath_CollapsesAndTrimsDashes(t *testing.T) {
	assert.Equal(t, "a-b-c", sanitizeForPath("a//b::c"))
	assert.Equal(t, "abc", sanitizeForPath("  abc  "))
}

func TestPlan_String(t *testing.T) {
	p := Plan{Branch: "b", WorktreePath: "/p"}
	assert.Equal(t, "branch=b path=/p", p.String())
}
