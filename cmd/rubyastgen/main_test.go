package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs a fresh command tree with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.NoError(t, err, path)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected %s to be absent", path)
}

func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "app/models/post.rb", "class Post\nend\n")
	writeFile(t, dir, "app/views/posts/index.html.erb", "<% @posts.each do |p| %>\n  <%= p.title %>\n<% end %>\n")
	writeFile(t, dir, "app/views/posts/bad.html.erb", "<% if x %>\n")
	writeFile(t, dir, "spec/post_spec.rb", "describe Post do\nend\n")
	writeFile(t, dir, "lib/broken.rb", "def broken(\n")
	return dir
}

func TestParse_DefaultAction(t *testing.T) {
	dir := project(t)
	out := filepath.Join(t.TempDir(), "docs")

	_, stderr, err := execute(t, "", "-i", dir, "-o", out)
	require.NoError(t, err)

	assertExists(t, filepath.Join(out, "app", "models", "post.rb.json"))
	assertExists(t, filepath.Join(out, "app", "views", "posts", "index.html.erb.json"))
	assertExists(t, filepath.Join(out, "app", "views", "posts", "bad.html.erb.json"))
	assertMissing(t, filepath.Join(out, "spec", "post_spec.rb.json"))
	assertMissing(t, filepath.Join(out, "lib", "broken.rb.json"))

	assert.Contains(t, stderr, "3 processed (1 transformed, 1 fallback), 0 skipped, 1 excluded, 1 failed")
	assert.Contains(t, stderr, "msg=failed")
	assert.NotContains(t, stderr, "level=DEBUG")
}

func TestParse_Subcommand(t *testing.T) {
	dir := project(t)
	out := t.TempDir()

	_, _, err := execute(t, "", "parse", dir, "--output", out, "--exclude", "", "--workers", "2")
	require.NoError(t, err)

	assertExists(t, filepath.Join(out, "spec", "post_spec.rb.json"))
}

func TestParse_SingleFile(t *testing.T) {
	dir := project(t)
	out := t.TempDir()

	_, _, err := execute(t, "", filepath.Join(dir, "app", "models", "post.rb"), "-o", out)
	require.NoError(t, err)

	assertExists(t, filepath.Join(out, "post.rb.json"))
}

func TestParse_Debug(t *testing.T) {
	dir := project(t)

	_, stderr, err := execute(t, "", "-i", dir, "-o", t.TempDir(), "--debug")
	require.NoError(t, err)
	assert.Contains(t, stderr, "level=DEBUG")
	assert.Contains(t, stderr, "template fell back")
	assert.Contains(t, stderr, "msg=excluded")
}

func TestParse_ProjectConfig(t *testing.T) {
	dir := project(t)
	writeFile(t, dir, "rubyastgen.yml", "outputDir: build/ast\nexclude: ^lib\nfilter: ext == \".rb\"\nworkers: 2\n")

	_, _, err := execute(t, "", dir)
	require.NoError(t, err)

	out := filepath.Join(dir, "build", "ast")
	assertExists(t, filepath.Join(out, "app", "models", "post.rb.json"))
	assertExists(t, filepath.Join(out, "spec", "post_spec.rb.json"))
	assertMissing(t, filepath.Join(out, "app", "views", "posts", "index.html.erb.json"))
}

func TestParse_FlagsOverrideConfig(t *testing.T) {
	dir := project(t)
	writeFile(t, dir, "rubyastgen.yml", "outputDir: build/ast\nexclude: ^app\n")
	out := t.TempDir()

	_, _, err := execute(t, "", dir, "-o", out, "-e", "^spec")
	require.NoError(t, err)

	assertExists(t, filepath.Join(out, "app", "models", "post.rb.json"))
	assertMissing(t, filepath.Join(out, "spec", "post_spec.rb.json"))
	assertMissing(t, filepath.Join(dir, "build", "ast"))
}

func TestParse_Errors(t *testing.T) {
	dir := project(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing input", []string{"-i", "/nonexistent/input"}, "input not found"},
		{"bad exclude", []string{"-i", dir, "-e", "(["}, "exclude pattern"},
		{"bad filter", []string{"-i", dir, "--filter", "size >"}, "filter expression"},
		{"missing hook", []string{"-i", dir, "--hook", filepath.Join(dir, "nope.risor")}, "load hook"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", append(tt.args, "-o", t.TempDir())...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_Hook(t *testing.T) {
	dir := project(t)
	hook := writeFile(t, t.TempDir(), "classes.risor", `
names := []
for _, m := range query("(class name: (constant) @name)", root) {
    names.append(node_text(m["name"]))
}
annotate("classes", names)
`)
	out := t.TempDir()

	_, _, err := execute(t, "", dir, "-o", out, "--hook", hook)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "app", "models", "post.rb.json"))
	require.NoError(t, err)
	var doc struct {
		Annotations map[string]any `json:"annotations"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []any{"Post"}, doc.Annotations["classes"])
}

func TestParse_BuiltinHook(t *testing.T) {
	dir := project(t)
	out := t.TempDir()

	_, _, err := execute(t, "", dir, "-o", out, "--hook", "builtin:outputs")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "app", "views", "posts", "index.html.erb.json"))
	require.NoError(t, err)
	var doc struct {
		Annotations map[string]any `json:"annotations"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(1), doc.Annotations["lambdas"])
	assert.Equal(t, float64(1), doc.Annotations["escaped"])

	_, _, err = execute(t, "", dir, "-o", out, "--hook", "builtin:nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: definitions, outputs")
}

func TestLower_Stdin(t *testing.T) {
	stdout, _, err := execute(t, "Hello <%= name %>!", "lower")
	require.NoError(t, err)
	assert.Equal(t, "joern__buffer = \"\"\n"+
		"joern__buffer << \"Hello \"\n"+
		"joern__buffer << joern__template_out_escape(name)\n"+
		"joern__buffer << \"!\"\n"+
		"return joern__buffer\n", stdout)
}

func TestLower_FileWithCheck(t *testing.T) {
	path := writeFile(t, t.TempDir(), "show.html.erb", "<% if @user %>\n<%== @user.bio %>\n<% end %>\n")

	stdout, _, err := execute(t, "", "lower", path, "--check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "joern__template_out_raw(@user.bio)")
}

func TestLower_Unbalanced(t *testing.T) {
	_, _, err := execute(t, "<% if x %>", "lower")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "<stdin>")
	assert.Contains(t, err.Error(), "unterminated")

	stdout, stderr, err := execute(t, "<% if x %>", "lower", "--fallback", "--check")
	require.NoError(t, err)
	assert.Equal(t, "<<~'ERB_TEMPLATE'\n<% if x %>\nERB_TEMPLATE\n", stdout)
	assert.Contains(t, stderr, "template fell back")
}

func TestStatus(t *testing.T) {
	dir := project(t)
	db := filepath.Join(t.TempDir(), "state", "manifest.db")

	_, _, err := execute(t, "", dir, "-o", t.TempDir(), "--db", db)
	require.NoError(t, err)

	stdout, _, err := execute(t, "", "status", "--db", db, "--format", "json", "--outcome", "failed,fallback")
	require.NoError(t, err)

	var status CLIStatus
	require.NoError(t, json.Unmarshal([]byte(stdout), &status))
	assert.Equal(t, db, status.Manifest)
	assert.Equal(t, 4, status.Total)
	assert.Equal(t, []CLIOutcomeCount{
		{Outcome: "failed", Count: 1},
		{Outcome: "fallback", Count: 1},
		{Outcome: "parsed", Count: 1},
		{Outcome: "transformed", Count: 1},
	}, status.Counts)
	require.Len(t, status.Files, 2)
	assert.Equal(t, "app/views/posts/bad.html.erb", status.Files[0].RelPath)
	assert.Equal(t, "lib/broken.rb", status.Files[1].RelPath)
	assert.Contains(t, status.Files[1].Error, "syntax error")

	text, _, err := execute(t, "", "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, text, "OUTCOME")
	assert.Contains(t, text, "total")
	assert.NotContains(t, text, "PATH")
}

func TestStatus_ManifestFromConfig(t *testing.T) {
	dir := project(t)
	writeFile(t, dir, "rubyastgen.yml", "outputDir: out\nmanifest: .rubyastgen/manifest.db\n")

	_, _, err := execute(t, "", dir)
	require.NoError(t, err)
	assertExists(t, filepath.Join(dir, ".rubyastgen", "manifest.db"))

	stdout, _, err := execute(t, "", "status", dir, "--format", "json")
	require.NoError(t, err)
	var status CLIStatus
	require.NoError(t, json.Unmarshal([]byte(stdout), &status))
	assert.Equal(t, 4, status.Total)

	// Second run is incremental: nothing but the failed file is redone.
	_, stderr, err := execute(t, "", dir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "0 processed (0 transformed, 0 fallback), 3 skipped, 1 excluded, 1 failed")
}

func TestStatus_Errors(t *testing.T) {
	_, _, err := execute(t, "", "status", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no manifest")

	_, _, err = execute(t, "", "status", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest not found")

	_, _, err = execute(t, "", "status", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("xml"))
}
