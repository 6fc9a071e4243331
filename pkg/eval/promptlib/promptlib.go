// Package promptlib loads named, versioned prompt records from Markdown
// files with YAML frontmatter (spec.md §3 "A prompt library lives
// alongside: Prompt(id,name,version,content,createdAt) with unique
// (name,version) and monotonically-increasing version per name"),
// grounded on the teacher's pkg/fragments.Processor.parseFrontmatter.
package promptlib

import (
	"bytes"
	"context"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// Prompt is one loaded prompt library record.
type Prompt struct {
	ID          string
	Name        string
	Description string
	Version     int
	Content     string
	CreatedAt   time.Time
}

// Store persists prompts, enforcing unique(name,version) and
// monotonically-increasing versions per name.
type Store interface {
	NextVersion(ctx context.Context, name string) (int, error)
	SavePrompt(ctx context.Context, p Prompt) error
	GetPrompt(ctx context.Context, name string, version int) (Prompt, error)
	LatestPrompt(ctx context.Context, name string) (Prompt, error)
}

// Library discovers and loads prompt Markdown files from disk.
type Library struct {
	store Store
}

// New constructs a Library backed by store.
func New(store Store) *Library {
	return &Library{store: store}
}

// LoadDir recursively discovers "*.md" prompt files under root using
// doublestar globbing (mirroring the teacher's glob-tool path matching),
// parses each one's frontmatter, and saves it with the next version for
// its name.
func (l *Library) LoadDir(ctx context.Context, root string) ([]Prompt, error) {
	matches, err := doublestar.Glob(os.DirFS(root), "**/*.md")
	if err != nil {
		return nil, errors.Wrap(err, "failed to glob prompt files")
	}

	prompts := make([]Prompt, 0, len(matches))
	for _, rel := range matches {
		content, err := os.ReadFile(root + string(os.PathSeparator) + rel)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read prompt file %s", rel)
		}

		name, description, body, err := parseFrontmatter(string(content))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse frontmatter in %s", rel)
		}
		if name == "" {
			continue
		}

		version, err := l.store.NextVersion(ctx, name)
		if err != nil {
			return nil, err
		}

		p := Prompt{
			ID:          uuid.NewString(),
			Name:        name,
			Description: description,
			Version:     version,
			Content:     body,
			CreatedAt:   time.Now(),
		}
		if err := l.store.SavePrompt(ctx, p); err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// parseFrontmatter extracts the "name"/"description" YAML frontmatter
// fields and the Markdown body, exactly as the teacher's
// Processor.parseFrontmatter does for recipe/agent files.
func parseFrontmatter(content string) (name, description, body string, err error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	source := []byte(content)
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(source, &buf, parser.WithContext(pctx)); err != nil {
		return "", "", content, errors.Wrap(err, "failed to convert markdown")
	}

	metaData := meta.Get(pctx)
	if metaData != nil {
		if v, ok := metaData["name"].(string); ok {
			name = v
		}
		if v, ok := metaData["description"].(string); ok {
			description = v
		}
	}

	return name, description, extractBody(content), nil
}

func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return content
	}
	return strings.Join(lines[end+1:], "\n")
}
