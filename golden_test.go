package rubyastgen

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/rubyastgen/internal/document"
	"github.com/jward/rubyastgen/internal/erb"
	"github.com/jward/rubyastgen/scripts"
)

// Golden test format. Each case directory under testdata/golden holds one
// template in src/, its exact lowering in lowered.rb and golden.json.
type goldenFile struct {
	Lowering    string         `json:"lowering"`
	Types       []string       `json:"types"`
	Annotations map[string]any `json:"annotations"`
}

// TestGolden runs every testdata/golden case through the lowering and the
// full Engine pipeline with the builtin outputs hook.
func TestGolden(t *testing.T) {
	root := filepath.Join("testdata", "golden")
	cases, err := os.ReadDir(root)
	if err != nil {
		t.Skip("no testdata/golden directory found")
	}

	outputsHook, ok := scripts.Builtin("outputs")
	require.True(t, ok)

	for _, c := range cases {
		if !c.IsDir() {
			continue
		}
		dir := filepath.Join(root, c.Name())
		t.Run(c.Name(), func(t *testing.T) {
			runGoldenTest(t, dir, outputsHook)
		})
	}
}

func runGoldenTest(t *testing.T, dir, hookPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(filepath.Join(dir, "golden.json"))
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	wantLowered, err := os.ReadFile(filepath.Join(dir, "lowered.rb"))
	require.NoError(t, err)

	srcDir := filepath.Join(dir, "src")
	entries, err := os.ReadDir(srcDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "one template per case")
	name := entries[0].Name()

	template, err := os.ReadFile(filepath.Join(srcDir, name))
	require.NoError(t, err)

	t.Run("lowering", func(t *testing.T) {
		got, _, _ := erb.Prepare(string(template))
		assert.Equal(t, string(wantLowered), got)
	})

	t.Run("document", func(t *testing.T) {
		e, out := newTestEngine(t, WithHookFS(scripts.FS), WithHookScript(hookPath))
		sum, err := e.Process(context.Background(), srcDir)
		require.NoError(t, err)
		require.Equal(t, 1, sum.Processed)

		doc := readDoc(t, out, name)
		assert.True(t, doc.IsERB)
		assert.Equal(t, golden.Lowering, doc.Lowering)

		types := strings.Fields(document.Types(doc.AST))
		for _, typ := range golden.Types {
			assert.Contains(t, types, typ)
		}
		assert.NotContains(t, types, "ERROR")

		for key, want := range golden.Annotations {
			assert.Equal(t, want, doc.Annotations[key], "annotation %s", key)
		}
	})
}
