package graph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionEvaluator decides which outgoing edges of a node fire.
// Compiled expression programs are cached and shared across runs.
type ConditionEvaluator struct {
	classifier Classifier

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewConditionEvaluator creates an evaluator. classifier may be nil when no
// edge uses an analysis condition.
func NewConditionEvaluator(classifier Classifier) *ConditionEvaluator {
	return &ConditionEvaluator{
		classifier: classifier,
		cache:      make(map[string]*vm.Program),
	}
}

// Evaluate reports whether edge fires for the given source output. Failures
// are returned as *ConditionEvaluationError.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, edge Edge, output string, outputs map[string]string) (bool, error) {
	c := edge.Condition
	if c == nil {
		return true, nil
	}

	var (
		ok  bool
		err error
	)
	switch c.Kind {
	case ConditionKeyword:
		ok = strings.Contains(output, c.Keyword)
	case ConditionAnalysis:
		ok, err = e.analyse(ctx, c, output)
	case ConditionExpression:
		ok, err = e.expression(c.Expression, edge.From, output, outputs)
	default:
		err = fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	if err != nil {
		return false, &ConditionEvaluationError{From: edge.From, To: edge.To, Kind: c.Kind, Err: err}
	}
	return ok, nil
}

func (e *ConditionEvaluator) analyse(ctx context.Context, c *Condition, output string) (bool, error) {
	if e.classifier == nil {
		return false, fmt.Errorf("no classifier configured")
	}
	resp, err := e.classifier.Classify(ctx, c.AnalysisPrompt+"\n\n"+output, c.Tier)
	if err != nil {
		return false, err
	}
	return IsAffirmative(resp), nil
}

// IsAffirmative reports whether a classifier response answers yes. The
// response is lower-cased, punctuation is stripped and the first word must be
// "yes".
func IsAffirmative(resp string) bool {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, resp)
	words := strings.Fields(cleaned)
	return len(words) > 0 && words[0] == "yes"
}

func exprEnv(node, output string, outputs map[string]string) map[string]any {
	if outputs == nil {
		outputs = map[string]string{}
	}
	return map[string]any{
		"output":  output,
		"node":    node,
		"outputs": outputs,
	}
}

func (e *ConditionEvaluator) expression(src, node, output string, outputs map[string]string) (bool, error) {
	prg, err := e.program(src)
	if err != nil {
		return false, err
	}
	res, err := vm.Run(prg, exprEnv(node, output, outputs))
	if err != nil {
		return false, fmt.Errorf("run expression %q: %w", src, err)
	}
	ok, isBool := res.(bool)
	if !isBool {
		return false, fmt.Errorf("expression %q returned %T, want bool", src, res)
	}
	return ok, nil
}

func (e *ConditionEvaluator) program(src string) (*vm.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[src]; ok {
		return prg, nil
	}
	prg, err := expr.Compile(src, expr.Env(exprEnv("", "", nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}
	e.cache[src] = prg
	return prg, nil
}

// RouteResult is the set of edges fired by one completion.
type RouteResult struct {
	Fired []Edge

	// Unmatched lists exclusive groups in which no edge fired.
	Unmatched []string

	// Errors holds condition failures; the affected edges did not fire.
	Errors []error
}

// Route evaluates the outgoing edges of a node. Edges outside exclusive groups
// are evaluated independently. Each exclusive group is evaluated in ascending
// Priority order (declaration order breaks ties) and stops at the first match.
func (e *ConditionEvaluator) Route(ctx context.Context, edges []Edge, output string, outputs map[string]string) RouteResult {
	var (
		res    RouteResult
		seen   = make(map[string]bool)
		groups = make(map[string][]Edge)
	)
	for _, edge := range edges {
		if edge.ExclusiveGroup != "" {
			groups[edge.ExclusiveGroup] = append(groups[edge.ExclusiveGroup], edge)
		}
	}

	for _, edge := range edges {
		if edge.ExclusiveGroup == "" {
			ok, err := e.Evaluate(ctx, edge, output, outputs)
			if err != nil {
				res.Errors = append(res.Errors, err)
			}
			if ok {
				res.Fired = append(res.Fired, edge)
			}
			continue
		}

		group := edge.ExclusiveGroup
		if seen[group] {
			continue
		}
		seen[group] = true

		members := groups[group]
		slices.SortStableFunc(members, func(a, b Edge) int {
			return cmp.Compare(a.Priority, b.Priority)
		})
		matched := false
		for _, m := range members {
			if ctx.Err() != nil {
				break
			}
			ok, err := e.Evaluate(ctx, m, output, outputs)
			if err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			if ok {
				res.Fired = append(res.Fired, m)
				matched = true
				break
			}
		}
		if !matched {
			res.Unmatched = append(res.Unmatched, group)
		}
	}
	return res
}
