package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"golang.org/x/sys/execabs"
)

// VCS fetches dependency sources from version control.
type VCS interface {
	// Sync ensures dir holds remote checked out at ref.
	// ref can be branch, tag, or commit hash.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Tags returns all tags of the remote repository.
	Tags(ctx context.Context, remote string) ([]string, error)

	// Latest returns the commit hash of the remote HEAD.
	Latest(ctx context.Context, remote string) (string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) ensureInit(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		return g.run(ctx, dir, "init", "-q")
	}
	return nil
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := g.ensureInit(ctx, dir); err != nil {
		return err
	}
	if err := g.run(ctx, dir, "fetch", "--depth", "1", remote, ref); err != nil {
		return fmt.Errorf("fetch %s %s: %w", remote, ref, err)
	}
	if err := g.run(ctx, dir, "checkout", "-q", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

func (g *gitVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	output, err := g.output(ctx, "", "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, fmt.Errorf("list remote tags: %w", err)
	}

	var tags []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		// format: <hash>\trefs/tags/<tag>
		if _, ref, ok := strings.Cut(line, "\t"); ok {
			tags = append(tags, strings.TrimPrefix(ref, "refs/tags/"))
		}
	}
	return tags, nil
}

func (g *gitVCS) Latest(ctx context.Context, remote string) (string, error) {
	output, err := g.output(ctx, "", "ls-remote", remote, "HEAD")
	if err != nil {
		return "", fmt.Errorf("get remote HEAD: %w", err)
	}
	hash, _, _ := strings.Cut(strings.TrimSpace(output), "\t")
	if hash == "" {
		return "", fmt.Errorf("no HEAD found in remote %s", remote)
	}
	return hash, nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := execabs.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// Resolve returns the ref to fetch for version. An empty version selects
// the highest semver tag, falling back to the remote HEAD when the remote
// has no semver tags.
func Resolve(ctx context.Context, v VCS, remote, version string) (string, error) {
	if version != "" {
		return version, nil
	}
	tags, err := v.Tags(ctx, remote)
	if err != nil {
		return "", err
	}
	if best := HighestTag(tags); best != "" {
		return best, nil
	}
	return v.Latest(ctx, remote)
}

// HighestTag returns the highest valid semver tag, or "".
func HighestTag(tags []string) string {
	best := ""
	for _, t := range tags {
		if !semver.IsValid(t) {
			continue
		}
		if best == "" || semver.Compare(t, best) > 0 {
			best = t
		}
	}
	return best
}
