package gitexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RefHash is one line of "ls-remote" output: a commit hash and the ref
// that reported it.
type RefHash struct {
	Hash string
	Ref  string
}

// LsRemote runs "git ls-remote url ref [ref^{}]": for refs/tags/* it
// queries both the tag and its peeled form in one invocation, since the
// peeled hash must win over the tag-object hash.
func (r *Runner) LsRemote(ctx context.Context, timeout time.Duration, url, ref string) ([]RefHash, error) {
	args := []string{"ls-remote", url, ref}
	if strings.HasPrefix(ref, "refs/tags/") {
		args = append(args, ref+"^{}")
	}
	out, err := r.Run(ctx, "", timeout, args...)
	if err != nil {
		return nil, err
	}
	var result []RefHash
	for _, line := range Lines(out) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		result = append(result, RefHash{Hash: fields[0], Ref: fields[1]})
	}
	return result, nil
}

// PeeledOrDirect picks the peeled (^{}) hash when present, falling back
// to the direct ref hash otherwise.
func PeeledOrDirect(refs []RefHash) (string, bool) {
	var direct string
	for _, rh := range refs {
		if strings.HasSuffix(rh.Ref, "^{}") {
			return rh.Hash, true
		}
		if direct == "" {
			direct = rh.Hash
		}
	}
	if direct != "" {
		return direct, true
	}
	return "", false
}

// SymrefHEAD runs "git ls-remote --symref url HEAD" and returns the branch
// name HEAD points at (e.g. "main"), used to find the repository's
// default branch during verification.
func (r *Runner) SymrefHEAD(ctx context.Context, timeout time.Duration, url string) (string, error) {
	out, err := r.Run(ctx, "", timeout, "ls-remote", "--symref", url, "HEAD")
	if err != nil {
		return "", err
	}
	for _, line := range Lines(out) {
		if strings.HasPrefix(line, "ref: ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				return strings.TrimPrefix(fields[1], "refs/heads/"), nil
			}
		}
	}
	return "", fmt.Errorf("gitexec: no symref HEAD line in ls-remote output for %s", url)
}

// BareDirExists reports whether dir looks like an initialized bare repo.
func BareDirExists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "HEAD"))
	return err == nil && !info.IsDir()
}

// InitBare runs "git init --bare" in a freshly created dir and adds origin.
func (r *Runner) InitBare(ctx context.Context, timeout time.Duration, dir, url string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("gitexec: mkdir %s: %w", dir, err)
	}
	if _, err := r.Run(ctx, "", timeout, "init", "--bare", "--quiet", dir); err != nil {
		return err
	}
	if _, err := r.Run(ctx, dir, timeout, "remote", "add", "origin", url); err != nil {
		return err
	}
	return nil
}

// SetRemoteURL updates origin's URL in an existing bare repo.
func (r *Runner) SetRemoteURL(ctx context.Context, timeout time.Duration, dir, url string) error {
	_, err := r.Run(ctx, dir, timeout, "remote", "set-url", "origin", url)
	return err
}

// CloneBare runs "git clone --bare --quiet url dir".
func (r *Runner) CloneBare(ctx context.Context, timeout time.Duration, url, dir string) error {
	_, err := r.Run(ctx, "", timeout, "clone", "--bare", "--quiet", url, dir)
	return err
}

// FetchAll runs "git fetch --all --quiet" in a bare repo dir.
func (r *Runner) FetchAll(ctx context.Context, timeout time.Duration, dir string) error {
	_, err := r.Run(ctx, dir, timeout, "fetch", "--all", "--quiet")
	return err
}

// FetchRef shallow-fetches a single ref or commit-ish from origin.
func (r *Runner) FetchRef(ctx context.Context, timeout time.Duration, dir, refOrCommit string) error {
	_, err := r.Run(ctx, dir, timeout, "fetch", "--quiet", "--depth=1", "origin", refOrCommit)
	return err
}

// Unshallow converts a shallow bare clone into a full one; FetchAll is
// used on every subsequent visit.
func (r *Runner) Unshallow(ctx context.Context, timeout time.Duration, dir string) error {
	_, err := r.Run(ctx, dir, timeout, "fetch", "--unshallow", "--quiet", "origin")
	return err
}

// ShowRefHash runs "git show-ref --hash ref" against a local bare repo.
func (r *Runner) ShowRefHash(ctx context.Context, timeout time.Duration, dir, ref string) (string, error) {
	out, err := r.Run(ctx, dir, timeout, "show-ref", "--hash", ref)
	if err != nil {
		return "", err
	}
	lines := Lines(out)
	if len(lines) == 0 {
		return "", fmt.Errorf("gitexec: ref %s not found in %s", ref, dir)
	}
	return lines[0], nil
}

// BranchExists checks "git show-ref --verify --quiet refs/heads/<name>" in dir.
func (r *Runner) BranchExists(ctx context.Context, timeout time.Duration, dir, name string) bool {
	_, err := r.Run(ctx, dir, timeout, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// RevParse resolves a ref-ish to a full hash within dir.
func (r *Runner) RevParse(ctx context.Context, timeout time.Duration, dir, refOrCommit string) (string, error) {
	out, err := r.Run(ctx, dir, timeout, "rev-parse", "--verify", refOrCommit)
	return out, err
}

// LogSinceUntil runs "git log --all --format='%H %ct' --since=s --until=u"
// against a full bare clone, returning each commit's full hash and its
// Unix commit time.
func (r *Runner) LogSinceUntil(ctx context.Context, timeout time.Duration, dir string, since, until time.Time) ([]LogEntry, error) {
	out, err := r.Run(ctx, dir, timeout,
		"log", "--all", "--format=%H %ct",
		"--since="+since.UTC().Format(time.RFC3339),
		"--until="+until.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	var entries []LogEntry
	for _, line := range Lines(out) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		entries = append(entries, LogEntry{Hash: fields[0], CommitTimeRaw: fields[1]})
	}
	return entries, nil
}

// LogUntilOnBranch returns the most recent commit at or before until on
// branch, or the branch tip if until is zero.
func (r *Runner) LogUntilOnBranch(ctx context.Context, timeout time.Duration, dir, branch string, until time.Time) (string, error) {
	args := []string{"log", "-n", "1", "--format=%H"}
	if !until.IsZero() {
		args = append(args, "--until="+until.UTC().Format(time.RFC3339))
	}
	args = append(args, "refs/remotes/origin/"+branch)
	out, err := r.Run(ctx, dir, timeout, args...)
	if err != nil {
		return "", err
	}
	lines := Lines(out)
	if len(lines) == 0 {
		return "", fmt.Errorf("gitexec: no commit found on %s at or before %s", branch, until)
	}
	return lines[0], nil
}

// LogEntry is one line of LogSinceUntil's output.
type LogEntry struct {
	Hash          string
	CommitTimeRaw string // unix seconds, as a string
}

// ForEachRefContains lists remote-tracking branches that contain commit.
func (r *Runner) ForEachRefContains(ctx context.Context, timeout time.Duration, dir, commit string) ([]string, error) {
	out, err := r.Run(ctx, dir, timeout,
		"for-each-ref", "--contains", commit, "--format=%(refname:short)", "refs/remotes/origin/")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range Lines(out) {
		names = append(names, strings.TrimPrefix(line, "origin/"))
	}
	return names, nil
}

// MergeBaseIsAncestor runs "git merge-base --is-ancestor commit ref".
func (r *Runner) MergeBaseIsAncestor(ctx context.Context, timeout time.Duration, dir, commit, ref string) (bool, error) {
	_, err := r.Run(ctx, dir, timeout, "merge-base", "--is-ancestor", commit, ref)
	if err == nil {
		return true, nil
	}
	if IsGitError(err) {
		return false, nil
	}
	return false, err
}

// RemoveStaleLocks removes *.lock files left behind by an interrupted
// git operation in a bare repo.
func RemoveStaleLocks(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lock") {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}
