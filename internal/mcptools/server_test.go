package mcptools

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/rubyastgen/internal/document"
)

// setupServerClient wires an MCP server and client together using in-memory
// transports and returns the connected client session.
func setupServerClient(t *testing.T) *mcp.ClientSession {
	t.Helper()

	server := NewMCPServer(NewService(nil))
	st, ct := mcp.NewInMemoryTransports()

	ctx := context.Background()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
	})
	return session
}

// callTool calls a tool and decodes its structured output into out.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args, out any) {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "%s should not return an error", name)
	require.NotNil(t, result.StructuredContent, "expected structured content from %s", name)

	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestMCPListTools(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{"lower_template", "parse_source"}, names)
}

func TestMCPLowerTemplate(t *testing.T) {
	session := setupServerClient(t)

	var out LowerTemplateOutput
	callTool(t, session, "lower_template", LowerTemplateInput{Template: "Hello <%= name %>!"}, &out)

	assert.False(t, out.Fallback)
	assert.Empty(t, out.Error)
	assert.Equal(t, "joern__buffer = \"\"\n"+
		"joern__buffer << \"Hello \"\n"+
		"joern__buffer << joern__template_out_escape(name)\n"+
		"joern__buffer << \"!\"\n"+
		"return joern__buffer\n", out.Source)
}

func TestMCPLowerTemplate_Fallback(t *testing.T) {
	session := setupServerClient(t)

	var out LowerTemplateOutput
	callTool(t, session, "lower_template", LowerTemplateInput{Template: "<% if a %>open"}, &out)

	assert.True(t, out.Fallback)
	assert.Contains(t, out.Error, "unterminated")
	assert.Contains(t, out.Source, "<<~'ERB_TEMPLATE'")
}

func TestMCPParseSource_Ruby(t *testing.T) {
	session := setupServerClient(t)

	var out ParseSourceOutput
	callTool(t, session, "parse_source", ParseSourceInput{Source: "puts 1\n", Path: "a.rb"}, &out)
	require.Empty(t, out.SyntaxError)

	var doc document.Document
	require.NoError(t, json.Unmarshal([]byte(out.Document), &doc))
	assert.Equal(t, "a.rb", doc.FilePath)
	assert.False(t, doc.IsERB)
	require.NotNil(t, doc.AST)
	assert.Equal(t, "program", doc.AST.Type)
}

func TestMCPParseSource_TemplateByPath(t *testing.T) {
	session := setupServerClient(t)

	var out ParseSourceOutput
	callTool(t, session, "parse_source", ParseSourceInput{
		Source: "<% items.each do |x| %><%= x %><% end %>",
		Path:   "app/views/index.html.erb",
	}, &out)
	require.Empty(t, out.SyntaxError)
	assert.Equal(t, document.LoweringTransformed, out.Lowering)

	var doc document.Document
	require.NoError(t, json.Unmarshal([]byte(out.Document), &doc))
	assert.True(t, doc.IsERB)
	assert.Contains(t, document.Types(doc.AST), "do_block")
}

func TestMCPParseSource_SyntaxError(t *testing.T) {
	session := setupServerClient(t)

	var out ParseSourceOutput
	callTool(t, session, "parse_source", ParseSourceInput{Source: "def broken(\n", Kind: "ruby"}, &out)
	assert.Empty(t, out.Document)
	assert.Contains(t, out.SyntaxError, "syntax error")
}

func TestMCPParseSource_UnknownKind(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "parse_source",
		Arguments: ParseSourceInput{Source: "x", Kind: "python"},
	})
	if err != nil {
		return
	}
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}
