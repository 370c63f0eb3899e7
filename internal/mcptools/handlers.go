package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/rubyastgen/internal/document"
	"github.com/jward/rubyastgen/internal/erb"
	"github.com/jward/rubyastgen/internal/ruby"
	"github.com/jward/rubyastgen/internal/runtime"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// LowerTemplateInput is the input for the lower_template MCP tool.
type LowerTemplateInput struct {
	Template string `json:"template" jsonschema:"ERB template text to lower"`
}

// LowerTemplateOutput is the result of the lower_template MCP tool.
type LowerTemplateOutput struct {
	Source   string `json:"source"`
	Fallback bool   `json:"fallback"`
	Error    string `json:"error,omitempty"`
}

// ParseSourceInput is the input for the parse_source MCP tool.
type ParseSourceInput struct {
	Source string `json:"source" jsonschema:"file contents to parse"`
	Path   string `json:"path,omitempty" jsonschema:"file path; its extension selects the kind when kind is empty"`
	Kind   string `json:"kind,omitempty" jsonschema:"ruby or erb (default: from path, else ruby)"`
}

// ParseSourceOutput is the result of the parse_source MCP tool.
type ParseSourceOutput struct {
	// Document is the serialised document JSON; empty on syntax errors.
	Document    string `json:"document,omitempty"`
	Lowering    string `json:"lowering,omitempty"`
	SyntaxError string `json:"syntaxError,omitempty"`
}

// Service holds the state used by MCP tool handlers.
type Service struct {
	logger *slog.Logger
}

// NewService creates a Service. A nil logger discards tool logs.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{logger: logger}
}

// LowerTemplate lowers a template and reports whether the fallback
// wrapping had to be used.
func (s *Service) LowerTemplate(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input LowerTemplateInput,
) (*mcp.CallToolResult, LowerTemplateOutput, error) {
	out, fellBack, err := erb.Prepare(input.Template)
	res := LowerTemplateOutput{Source: out, Fallback: fellBack}
	if err != nil {
		res.Error = err.Error()
		s.logger.Debug("template fell back", "error", err)
	}
	return nil, res, nil
}

// ParseSource parses Ruby source or a template into a document. Syntax
// errors are reported in the output rather than as tool errors.
func (s *Service) ParseSource(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ParseSourceInput,
) (*mcp.CallToolResult, ParseSourceOutput, error) {
	kind := input.Kind
	if kind == "" {
		kind = runtime.KindRuby
		if k, ok := runtime.KindForFile(input.Path); ok {
			kind = k
		}
	}
	if _, ok := runtime.ParserForKind(kind); !ok {
		return nil, ParseSourceOutput{}, fmt.Errorf("unsupported kind %q", kind)
	}

	origin := input.Path
	if origin == "" {
		origin = "<input>"
	}

	var res ParseSourceOutput
	src := input.Source
	if kind == runtime.KindERB {
		out, fellBack, _ := erb.Prepare(src)
		src = out
		res.Lowering = document.LoweringTransformed
		if fellBack {
			res.Lowering = document.LoweringFallback
		}
	}

	tree, err := ruby.Parse(ctx, []byte(src), origin)
	if err != nil {
		var se *ruby.SyntaxError
		if errors.As(err, &se) {
			s.logger.Debug("parse failed", "origin", origin, "line", se.Line, "column", se.Column)
			res.SyntaxError = se.Error()
			return nil, res, nil
		}
		return nil, ParseSourceOutput{}, err
	}

	doc := &document.Document{
		FilePath:    origin,
		RelFilePath: filepath.ToSlash(origin),
		IsERB:       kind == runtime.KindERB,
		Lowering:    res.Lowering,
		AST:         document.Build(tree),
	}
	data, err := document.Marshal(doc)
	if err != nil {
		return nil, ParseSourceOutput{}, err
	}
	res.Document = string(data)
	return nil, res, nil
}
