package vcs

import (
	"errors"
	"fmt"
	"os/user"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNoRepository is returned when the project directory is not a git worktree.
var ErrNoRepository = errors.New("vcs: not a git repository")

// Info describes the current head of the working tree.
type Info struct {
	CommitSHA string
	Branch    string
}

// Client inspects and commits to the local project working tree.
type Client struct {
	repo *git.Repository
	dir  string
}

// Open attaches to the git repository containing dir.
func Open(dir string) (*Client, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNoRepository, dir)
		}
		return nil, err
	}
	return &Client{repo: repo, dir: dir}, nil
}

// CommitRequired reports whether the working tree holds uncommitted changes.
func (c *Client) CommitRequired() (bool, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return !status.IsClean(), nil
}

// CommitAll stages every change and commits it, returning the new commit hash.
func (c *Client) CommitAll(message string) (string, error) {
	if message == "" {
		message = "farmctl: commit before build submission"
	}

	wt, err := c.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthor(),
			Email: "farmctl@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}

// Describe returns the head commit and branch, if any.
func (c *Client) Describe() (Info, error) {
	head, err := c.repo.Head()
	if err != nil {
		return Info{}, fmt.Errorf("head: %w", err)
	}
	info := Info{CommitSHA: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info, nil
}

func commitAuthor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "farmctl"
}
