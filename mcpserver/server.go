// Package mcpserver exposes the grading engine as MCP tools, so an assistant
// can compare row sets, check script output, search the exercise catalog and
// grade a submission against a catalog exercise.
//
// Tools are declared as toolfoundation model.Tool values in the
// "exercisegrade" namespace and registered in a tooldiscovery index together
// with one document per exercise, so search_catalog covers both.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonwraymond/tooldiscovery/index"
	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/exercisegrade/diff"
	"github.com/jonwraymond/exercisegrade/grade"
	"github.com/jonwraymond/exercisegrade/progress"
	"github.com/jonwraymond/exercisegrade/result"
	"github.com/jonwraymond/exercisegrade/runtime"
	"github.com/jonwraymond/exercisegrade/server"
	"github.com/jonwraymond/exercisegrade/textcheck"
)

// Tool names.
const (
	ToolListExercises   = "list_exercises"
	ToolSearchCatalog   = "search_catalog"
	ToolDiffRows        = "diff_rows"
	ToolValidateOutput  = "validate_output"
	ToolGradeSubmission = "grade_submission"
)

// Config configures a Server.
type Config struct {
	// Catalog provides exercises and SQL fixtures.
	// Required.
	Catalog *server.Catalog

	// Engine configures the interpreters. Fixtures default to the Catalog.
	Engine server.EngineConfig

	// Sink is notified of solved exercises. Optional.
	Sink progress.Sink

	// Name and Version identify the server to MCP clients.
	Name    string
	Version string

	Logger runtime.Logger
}

// Server holds one grading session and the tools that drive it.
//
// Contract:
// - Concurrency: safe for concurrent use; grade_submission calls are serialized.
type Server struct {
	cfg     Config
	tools   *catalogue
	engine  *server.Engine
	session *grade.Session

	mu sync.Mutex
}

// New creates a Server with all tools registered.
func New(cfg Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: missing required fields: Catalog", runtime.ErrConfiguration)
	}
	if cfg.Engine.Fixtures == nil {
		cfg.Engine.Fixtures = cfg.Catalog
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = cfg.Logger
	}
	if cfg.Name == "" {
		cfg.Name = "exercisegrade"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	engine, err := server.NewEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	session, err := grade.NewSession(grade.SessionConfig{
		Executor: engine,
		Sink:     cfg.Sink,
		Logger:   cfg.Logger,
	})
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	s := &Server{cfg: cfg, tools: newCatalogue(), engine: engine, session: session}
	if err := s.registerTools(); err != nil {
		_ = engine.Close()
		return nil, err
	}
	s.indexExercises()
	return s, nil
}

// Close releases the interpreters.
func (s *Server) Close() error {
	return s.engine.Close()
}

// Tools returns the grading tools in registration order.
func (s *Server) Tools() []model.Tool {
	return append([]model.Tool(nil), s.tools.tools...)
}

// Call invokes a grading tool by name or by its namespaced id.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	return s.tools.call(ctx, name, args)
}

// MCP builds an MCP server exposing every registered tool.
func (s *Server) MCP() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: s.cfg.Name, Version: s.cfg.Version}, nil)
	for _, tool := range s.tools.tools {
		t := tool.Tool
		srv.AddTool(&t, s.handler(tool.Name))
	}
	return srv
}

// Run serves the tools over transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.MCP().Run(ctx, transport)
}

// handler adapts a registered tool to the MCP call shape. Tool failures are
// reported to the client as error results, not protocol errors.
func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return errorResult(fmt.Errorf("%w: %v", ErrInvalidArgs, err)), nil
			}
		}
		out, err := s.tools.call(ctx, name, args)
		if err != nil {
			s.cfg.Logger.Warn("tool call failed", "tool", name, "error", err)
			return errorResult(err), nil
		}
		text, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(text)}}}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// ExerciseSummary is one entry of list_exercises.
type ExerciseSummary struct {
	ID         string           `json:"id"`
	Language   runtime.Language `json:"language"`
	Topic      string           `json:"topic,omitempty"`
	Difficulty string           `json:"difficulty,omitempty"`
	Hints      []string         `json:"hints,omitempty"`
}

// OutputCheck is the result of validate_output.
type OutputCheck struct {
	Match             bool   `json:"match"`
	CanonicalOutput   string `json:"canonicalOutput"`
	CanonicalExpected string `json:"canonicalExpected"`
}

type diffArgs struct {
	UserRows     []map[string]any `json:"userRows"`
	ExpectedRows []map[string]any `json:"expectedRows"`
}

type validateArgs struct {
	Output   string `json:"output"`
	Expected string `json:"expected"`
	Strict   bool   `json:"strict"`
}

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type gradeArgs struct {
	ExerciseID string `json:"exerciseId"`
	Code       string `json:"code"`
}

func (s *Server) registerTools() error {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true}

	tools := []struct {
		tool    model.Tool
		handler HandlerFunc
	}{
		{model.Tool{
			Tool: mcp.Tool{
				Name:        ToolListExercises,
				Title:       "List exercises",
				Description: "Lists the exercises of the catalog with their language, topic and difficulty.",
				InputSchema: object(nil, map[string]any{}),
				Annotations: readOnly,
			},
			Tags: []string{"catalog", "readonly"},
		}, s.listExercises},
		{model.Tool{
			Tool: mcp.Tool{
				Name:        ToolSearchCatalog,
				Title:       "Search the catalog",
				Description: "Searches grading tools and exercises by name, description and tags such as topic, language or difficulty.",
				InputSchema: object([]string{"query"}, map[string]any{
					"query": stringSchema("Words to look for, e.g. a topic like joins."),
					"limit": map[string]any{"type": "integer", "description": "Maximum number of results (default 10)."},
				}),
				Annotations: readOnly,
			},
			Tags: []string{"catalog", "search", "readonly"},
		}, s.searchCatalog},
		{model.Tool{
			Tool: mcp.Tool{
				Name:        ToolDiffRows,
				Title:       "Diff result rows",
				Description: "Compares a learner's result rows with the expected rows, ignoring row order, value case and extra learner columns.",
				InputSchema: object([]string{"userRows", "expectedRows"}, map[string]any{
					"userRows":     rowsSchema("Rows the learner's query returned, as column-to-value objects."),
					"expectedRows": rowsSchema("Rows the exercise expects."),
				}),
				Annotations: readOnly,
			},
			Tags: []string{"sql", "rows", "readonly"},
		}, s.diffRows},
		{model.Tool{
			Tool: mcp.Tool{
				Name:        ToolValidateOutput,
				Title:       "Validate script output",
				Description: "Checks a script's printed output against the expected output. Whitespace runs are collapsed unless strict is set.",
				InputSchema: object([]string{"output", "expected"}, map[string]any{
					"output":   stringSchema("What the script printed."),
					"expected": stringSchema("The expected output."),
					"strict":   map[string]any{"type": "boolean", "description": "Compare exactly after trimming."},
				}),
				Annotations: readOnly,
			},
			Tags: []string{"script", "output", "readonly"},
		}, s.validateOutput},
		{model.Tool{
			Tool: mcp.Tool{
				Name:        ToolGradeSubmission,
				Title:       "Grade a submission",
				Description: "Runs code for a catalog exercise and returns the execution result and the verdict.",
				InputSchema: object([]string{"exerciseId", "code"}, map[string]any{
					"exerciseId": stringSchema("Id of the catalog exercise."),
					"code":       stringSchema("The learner's SQL or script source."),
				}),
			},
			Tags: []string{"sql", "script", "grading"},
		}, s.gradeSubmission},
	}
	for _, t := range tools {
		if err := s.tools.addTool(t.tool, t.handler); err != nil {
			return err
		}
	}
	return nil
}

// indexExercises adds every catalog exercise to the search index. Exercises
// whose id the index rejects stay gradable but are not searchable.
func (s *Server) indexExercises() {
	for _, id := range s.cfg.Catalog.IDs() {
		ex, err := s.cfg.Catalog.Exercise(id)
		if err != nil {
			continue
		}
		if err := s.tools.addExercise(exerciseDoc(ex)); err != nil {
			s.cfg.Logger.Warn("exercise not searchable", "exercise", id, "error", err)
		}
	}
}

func exerciseDoc(ex grade.Exercise) model.Tool {
	desc := fmt.Sprintf("%s exercise", ex.Language)
	if ex.Topic != "" {
		desc += " on " + ex.Topic
	}
	if ex.Difficulty != "" {
		desc += " (" + ex.Difficulty + ")"
	}
	if len(ex.Hints) > 0 {
		desc += ". " + strings.Join(ex.Hints, " ")
	}
	tags := []string{string(ex.Language)}
	for _, t := range []string{ex.Topic, ex.Difficulty} {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return model.Tool{
		Tool: mcp.Tool{
			Name:        ex.ID,
			Description: desc,
			InputSchema: object([]string{"code"}, map[string]any{
				"code": stringSchema("The learner's source for this exercise."),
			}),
		},
		Tags: tags,
	}
}

func (s *Server) listExercises(_ context.Context, _ map[string]any) (any, error) {
	ids := s.cfg.Catalog.IDs()
	out := make([]ExerciseSummary, 0, len(ids))
	for _, id := range ids {
		ex, err := s.cfg.Catalog.Exercise(id)
		if err != nil {
			return nil, err
		}
		out = append(out, ExerciseSummary{
			ID:         ex.ID,
			Language:   ex.Language,
			Topic:      ex.Topic,
			Difficulty: ex.Difficulty,
			Hints:      ex.Hints,
		})
	}
	return out, nil
}

func (s *Server) searchCatalog(_ context.Context, args map[string]any) (any, error) {
	var in searchArgs
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 {
		in.Limit = 10
	}
	results, err := s.tools.search(in.Query, in.Limit)
	if err != nil {
		return nil, fmt.Errorf("search catalog: %w", err)
	}
	if results == nil {
		results = []index.Summary{}
	}
	return results, nil
}

func (s *Server) diffRows(_ context.Context, args map[string]any) (any, error) {
	var in diffArgs
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	return diff.Diff(toRows(in.UserRows), toRows(in.ExpectedRows)), nil
}

func (s *Server) validateOutput(_ context.Context, args map[string]any) (any, error) {
	var in validateArgs
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	return OutputCheck{
		Match:             textcheck.ValidateOutput(in.Output, in.Expected, in.Strict),
		CanonicalOutput:   textcheck.Canonical(in.Output),
		CanonicalExpected: textcheck.Canonical(in.Expected),
	}, nil
}

func (s *Server) gradeSubmission(ctx context.Context, args map[string]any) (any, error) {
	var in gradeArgs
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	ex, err := s.cfg.Catalog.Exercise(in.ExerciseID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.session.Exercise(); !ok || cur.ID != ex.ID {
		if err := s.session.SetExercise(ex); err != nil {
			return nil, err
		}
	}
	out, err := s.session.Run(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toRows(ms []map[string]any) []result.Row {
	rows := make([]result.Row, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, result.RowFromMap(m))
	}
	return rows
}
