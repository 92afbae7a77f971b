package rules

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
)

// DefaultCostLimit bounds the work a single expression evaluation may do.
const DefaultCostLimit = 1000000

// StateVariable is the name expressions use to reach the state.
const StateVariable = "state"

// CELEnv is a compiled-expression environment shared by ExpressionRules.
type CELEnv struct {
	env       *cel.Env
	costLimit uint64
	fields    map[string]string
}

// NewCELEnv creates the environment exposing the state as
// map(string, dyn). A costLimit of zero selects DefaultCostLimit.
func NewCELEnv(costLimit uint64) (*CELEnv, error) {
	env, err := cel.NewEnv(
		cel.Variable(StateVariable, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	if costLimit == 0 {
		costLimit = DefaultCostLimit
	}
	return &CELEnv{env: env, costLimit: costLimit}, nil
}

// WithStateFields returns an environment that only compiles expressions
// reading the given state fields, typed "string", "number" or "bool".
// Comparing a field with a literal of another type is a compile error.
func (e *CELEnv) WithStateFields(fields map[string]string) *CELEnv {
	if e == nil {
		return nil
	}
	f := make(map[string]string, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return &CELEnv{env: e.env, costLimit: e.costLimit, fields: f}
}

func (e *CELEnv) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile error: %w", ErrInvalidExpression, issues.Err())
	}
	if !ast.OutputType().IsAssignableType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidExpression, ast.OutputType())
	}
	if e.fields != nil {
		if err := e.checkFields(ast.NativeRep()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
		}
	}

	prog, err := e.env.Program(ast, cel.CostLimit(e.costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// checkFields rejects state.f and state["f"] for undeclared f, and
// comparisons of a declared field with a literal of the wrong type.
func (e *CELEnv) checkFields(a *celast.AST) error {
	root := celast.NavigateAST(a)

	for _, ref := range celast.MatchDescendants(root, isStateField) {
		name, _ := stateField(ref)
		if _, ok := e.fields[name]; !ok {
			return fmt.Errorf("state field %q is not declared in the schema", name)
		}
	}

	for _, call := range celast.MatchDescendants(root, celast.KindMatcher(celast.CallKind)) {
		if !comparison[call.AsCall().FunctionName()] {
			continue
		}
		args := call.AsCall().Args()
		if len(args) != 2 {
			continue
		}
		for i, arg := range args {
			name, ok := stateField(arg)
			if !ok {
				continue
			}
			other := args[1-i]
			if other.Kind() != celast.LiteralKind {
				continue
			}
			want := e.fields[name]
			if got := literalType(other.AsLiteral()); got != "" && got != want {
				return fmt.Errorf("%s field %q compared with a %s", want, name, got)
			}
		}
	}
	return nil
}

var comparison = map[string]bool{
	operators.Equals:        true,
	operators.NotEquals:     true,
	operators.Less:          true,
	operators.LessEquals:    true,
	operators.Greater:       true,
	operators.GreaterEquals: true,
}

func isStateField(e celast.NavigableExpr) bool {
	_, ok := stateField(e)
	return ok
}

// stateField reports the field name for state.f and state["f"].
func stateField(e celast.Expr) (string, bool) {
	switch e.Kind() {
	case celast.SelectKind:
		sel := e.AsSelect()
		if isStateIdent(sel.Operand()) {
			return sel.FieldName(), true
		}
	case celast.CallKind:
		call := e.AsCall()
		fn := call.FunctionName()
		if fn != operators.Index && fn != operators.OptIndex {
			return "", false
		}
		args := call.Args()
		if len(args) != 2 || !isStateIdent(args[0]) || args[1].Kind() != celast.LiteralKind {
			return "", false
		}
		if key, ok := args[1].AsLiteral().(types.String); ok {
			return string(key), true
		}
	}
	return "", false
}

func isStateIdent(e celast.Expr) bool {
	return e.Kind() == celast.IdentKind && e.AsIdent() == StateVariable
}

func literalType(v any) string {
	switch v.(type) {
	case types.String:
		return "string"
	case types.Int, types.Uint, types.Double:
		return "number"
	case types.Bool:
		return "bool"
	}
	return ""
}

// ExpressionRule matches when a CEL expression over the state is true.
type ExpressionRule struct {
	expression string
	program    cel.Program
	eligible   Eligibility
}

// NewExpressionRule compiles expression in env. The expression must have a
// boolean (or dyn) result type.
func NewExpressionRule(env *CELEnv, expression string, eligible ...int64) (*ExpressionRule, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil CEL environment", ErrInvalidExpression)
	}
	prog, err := env.compile(expression)
	if err != nil {
		return nil, err
	}
	return &ExpressionRule{
		expression: expression,
		program:    prog,
		eligible:   NewEligibility(eligible...),
	}, nil
}

// Condition evaluates the expression. Evaluation errors, a missing key among
// them, and non-boolean results count as a non-match. A cancelled or expired
// ctx is returned as an error.
func (r *ExpressionRule) Condition(ctx context.Context, state State) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	vars := map[string]any{StateVariable: map[string]any(state)}
	if state == nil {
		vars[StateVariable] = map[string]any{}
	}

	out, _, err := r.program.ContextEval(ctx, vars)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

func (r *ExpressionRule) Action(_ context.Context, candidates []Candidate) ([]Candidate, error) {
	return r.eligible.Filter(candidates), nil
}

func (r *ExpressionRule) Eligibility() Eligibility { return r.eligible }

func (r *ExpressionRule) String() string {
	return r.expression
}
