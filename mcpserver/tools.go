package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonwraymond/tooldiscovery/index"
	"github.com/jonwraymond/toolfoundation/model"
)

// Namespaces of the catalogue index. Grading tools live in Namespace; every
// catalog exercise is indexed as a document in ExerciseNamespace so one
// search covers both.
const (
	Namespace         = "exercisegrade"
	ExerciseNamespace = "exercise"
)

// Errors returned by tool calls.
var (
	ErrToolNotFound = errors.New("tool not found")
	ErrInvalidArgs  = errors.New("invalid tool arguments")
)

// HandlerFunc is the function signature for tool handlers.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// catalogue indexes the grading tools and the exercise docs, and maps each
// tool's local backend to its handler.
//
// It is filled once by New and read-only afterwards.
type catalogue struct {
	idx      index.Index
	tools    []model.Tool
	handlers map[string]HandlerFunc
}

func newCatalogue() *catalogue {
	return &catalogue{
		idx:      index.NewInMemoryIndex(),
		handlers: make(map[string]HandlerFunc),
	}
}

// addTool registers a grading tool. Its local backend is named after the tool.
func (c *catalogue) addTool(tool model.Tool, h HandlerFunc) error {
	tool.Namespace = Namespace
	tool.Tags = model.NormalizeTags(tool.Tags)
	if err := c.idx.RegisterTool(tool, model.NewLocalBackend(tool.Name)); err != nil {
		return fmt.Errorf("register tool %s: %w", tool.Name, err)
	}
	c.tools = append(c.tools, tool)
	c.handlers[tool.Name] = h
	return nil
}

// addExercise indexes an exercise doc. Its backend points at the tool that
// grades it.
func (c *catalogue) addExercise(doc model.Tool) error {
	doc.Namespace = ExerciseNamespace
	doc.Tags = model.NormalizeTags(doc.Tags)
	if err := c.idx.RegisterTool(doc, model.NewLocalBackend(ToolGradeSubmission)); err != nil {
		return fmt.Errorf("index exercise %s: %w", doc.Name, err)
	}
	return nil
}

// call resolves name through the index and runs the handler bound to its
// local backend. Both "diff_rows" and "exercisegrade:diff_rows" resolve.
func (c *catalogue) call(ctx context.Context, name string, args map[string]any) (any, error) {
	id := name
	if !strings.Contains(id, ":") {
		id = Namespace + ":" + name
	}
	if !strings.HasPrefix(id, Namespace+":") {
		return nil, fmt.Errorf("%w: %s is not a grading tool", ErrToolNotFound, name)
	}
	_, backend, err := c.idx.GetTool(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if backend.Kind != model.BackendKindLocal || backend.Local == nil {
		return nil, fmt.Errorf("%w: %s has no local handler", ErrToolNotFound, name)
	}
	h, ok := c.handlers[backend.Local.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return h(ctx, args)
}

func (c *catalogue) search(query string, limit int) ([]index.Summary, error) {
	return c.idx.Search(query, limit)
}

// decode converts tool arguments into a typed input struct.
func decode(args map[string]any, into any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func rowsSchema(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": desc,
		"items":       map[string]any{"type": "object"},
	}
}

func stringSchema(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}
