package promptlib_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/eval/evalstore"
	"github.com/weftctx/weft/pkg/eval/promptlib"
)

func writePromptFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDirParsesFrontmatterAndVersions(t *testing.T) {
	dir := t.TempDir()
	writePromptFile(t, dir, "arithmetic.md", "---\nname: arithmetic\ndescription: basic math\n---\nAnswer with just the number.\n")

	store, err := evalstore.New(context.Background(), filepath.Join(t.TempDir(), "eval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// promptlib needs a raw *sqlx.DB; evalstore doesn't expose one, so
	// this test exercises the frontmatter parsing path against an
	// in-memory store instead of the SQL-backed one.
	mem := newMemStore()
	lib := promptlib.New(mem)

	prompts, err := lib.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	require.Equal(t, "arithmetic", prompts[0].Name)
	require.Equal(t, "basic math", prompts[0].Description)
	require.Equal(t, 1, prompts[0].Version)
	require.Contains(t, prompts[0].Content, "Answer with just the number.")

	// Loading again bumps the version for the same name.
	prompts2, err := lib.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, prompts2[0].Version)
}

type memStore struct {
	byName map[string][]promptlib.Prompt
}

func newMemStore() *memStore { return &memStore{byName: map[string][]promptlib.Prompt{}} }

func (m *memStore) NextVersion(_ context.Context, name string) (int, error) {
	return len(m.byName[name]) + 1, nil
}

func (m *memStore) SavePrompt(_ context.Context, p promptlib.Prompt) error {
	m.byName[p.Name] = append(m.byName[p.Name], p)
	return nil
}

func (m *memStore) GetPrompt(_ context.Context, name string, version int) (promptlib.Prompt, error) {
	for _, p := range m.byName[name] {
		if p.Version == version {
			return p, nil
		}
	}
	return promptlib.Prompt{}, os.ErrNotExist
}

func (m *memStore) LatestPrompt(_ context.Context, name string) (promptlib.Prompt, error) {
	ps := m.byName[name]
	if len(ps) == 0 {
		return promptlib.Prompt{}, os.ErrNotExist
	}
	return ps[len(ps)-1], nil
}
