// Package filter evaluates CEL expressions against journal entries.
//
// An expression sees these variables:
//
//	rating      int           mood rating, 1..5
//	notes       string        notes, empty when absent
//	tags        list(string)  all tag names
//	activities  list(string)  activity tag names
//	places      list(string)  place tag names
//	events      list(string)  event tag names
//	hour        int           hour of day in the zone the entry was recorded in
//	weekday     int           0 = Sunday
//
// Example: `rating <= 2 && "work" in events`.
package filter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pbaille/moods/internal/domain"
)

// ErrInvalidExpression is returned for expressions that do not compile or do not yield a bool
var ErrInvalidExpression = domain.ErrInvalidFilter

// Evaluator compiles and caches filter programs
type Evaluator struct {
	env   *cel.Env
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates an evaluator with the entry variables declared
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("rating", cel.IntType),
		cel.Variable("notes", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("activities", cel.ListType(cel.StringType)),
		cel.Variable("places", cel.ListType(cel.StringType)),
		cel.Variable("events", cel.ListType(cel.StringType)),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// Compile checks expr without evaluating it
func (e *Evaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Match reports whether entry satisfies expr
func (e *Evaluator) Match(expr string, entry domain.EntryWithTags) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(Vars(entry))
	if err != nil {
		return false, fmt.Errorf("evaluate filter: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: result is %T, want bool", ErrInvalidExpression, out.Value())
	}
	return result, nil
}

// Apply returns the entries matching expr, preserving order. A blank
// expression matches everything.
func (e *Evaluator) Apply(expr string, entries []domain.EntryWithTags) ([]domain.EntryWithTags, error) {
	if strings.TrimSpace(expr) == "" {
		return entries, nil
	}

	out := make([]domain.EntryWithTags, 0, len(entries))
	for _, entry := range entries {
		ok, err := e.Match(expr, entry)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Vars builds the activation for one entry
func Vars(entry domain.EntryWithTags) map[string]any {
	notes := ""
	if entry.Notes != nil {
		notes = *entry.Notes
	}
	return map[string]any{
		"rating":     int64(entry.Rating),
		"notes":      notes,
		"tags":       entry.TagNames(),
		"activities": entry.TagNames(domain.CategoryActivity),
		"places":     entry.TagNames(domain.CategoryPlace),
		"events":     entry.TagNames(domain.CategoryEvent),
		"hour":       int64(entry.Timestamp.Hour()),
		"weekday":    int64(entry.Timestamp.Weekday()),
	}
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: result is %s, want bool", ErrInvalidExpression, t)
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// CacheSize returns the number of cached programs
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
