// Package gitrepo keeps a linear revision history of each job's rich text
// fields, one git repository per job.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const contentFile = "content.json"

var ErrNoHistory = errors.New("job has no revision history")

// Content is the versioned part of a job.
type Content struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	ApplicationProcess string `json:"applicationProcess"`
	ImportantDates     string `json:"importantDates"`
	HowToApply         string `json:"howToApply"`
}

type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Commit records content as the job's newest revision, creating the
// repository on first use. Unchanged content returns the current head
// without a new commit.
func (s *Service) Commit(jobID string, content Content, author, message string) (Revision, error) {
	lock := s.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(jobID)
	if err != nil {
		return Revision{}, err
	}

	if head, err := headCommit(repo); err == nil {
		previous, err := readContentFromCommit(head)
		if err != nil {
			return Revision{}, err
		}
		changed := ChangedFields(previous, content)
		if len(changed) == 0 {
			return toRevision(head), nil
		}
		message = fmt.Sprintf("%s\n\nfields: %s", message, strings.Join(changed, ", "))
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return Revision{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return Revision{}, fmt.Errorf("marshal content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), contentFile), append(payload, '\n'), 0o644); err != nil {
		return Revision{}, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Revision{}, fmt.Errorf("git add content: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@admin.jobmilegi.in", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit content: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), nil
}

// History lists revisions newest first. A job that was never committed has an
// empty history.
func (s *Service) History(jobID string, limit int) ([]Revision, error) {
	lock := s.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(jobID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := headCommit(repo)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the content recorded by one revision. hash may be
// abbreviated.
func (s *Service) ContentAt(jobID, hash string) (Content, error) {
	lock := s.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(jobID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Content{}, ErrNoHistory
	}
	if err != nil {
		return Content{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return Content{}, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContentFromCommit(commitObj)
}

// Remove drops a deleted job's history.
func (s *Service) Remove(jobID string) error {
	lock := s.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(jobID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) openOrInit(jobID string) (*git.Repository, error) {
	path := s.repoPath(jobID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(jobID string) string {
	return filepath.Join(s.baseDir, filepath.Base(jobID))
}

func (s *Service) jobLock(jobID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[jobID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[jobID] = lock
	return lock
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return commitObj, nil
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	raw, err := file.Contents()
	if err != nil {
		return Content{}, fmt.Errorf("read content: %w", err)
	}
	var content Content
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

// ChangedFields names the fields that differ, in a fixed order.
func ChangedFields(from, to Content) []string {
	pairs := []struct {
		field         string
		before, after string
	}{
		{"title", from.Title, to.Title},
		{"description", from.Description, to.Description},
		{"applicationProcess", from.ApplicationProcess, to.ApplicationProcess},
		{"importantDates", from.ImportantDates, to.ImportantDates},
		{"howToApply", from.HowToApply, to.HowToApply},
	}
	var changed []string
	for _, p := range pairs {
		if p.before != p.after {
			changed = append(changed, p.field)
		}
	}
	return changed
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "admin"
	}
	return string(out)
}
