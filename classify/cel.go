package classify

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/recovery/types"
)

// CELRule compiles a CEL boolean expression into a classification Rule.
//
// The expression is evaluated against five variables describing the
// failure:
//
//	code      (string) declared error code, or "" (see Code)
//	message   (string) the error's message text
//	tool      (string) failing tool name from the invocation context
//	operation (string) failing operation name
//	attempts  (int)    previous attempts of this operation
//
// Example:
//
//	rule, err := classify.CELRule("payment_declined",
//	    `tool == "billing" && message.contains("declined")`,
//	    classify.Classification{
//	        Category: classify.CategoryValidation,
//	        Severity: classify.SeverityHigh,
//	        Confidence: 0.9,
//	        RequiresUserAction: true,
//	    })
//
// Compilation happens once here; evaluation at classification time is
// deterministic and side-effect free. Expressions that fail to evaluate
// simply do not match.
func CELRule(name, expr string, result Classification) (Rule, error) {
	if name == "" {
		return Rule{}, fmt.Errorf("cel rule: name is required")
	}

	env, err := cel.NewEnv(
		cel.Variable("code", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("tool", cel.StringType),
		cel.Variable("operation", cel.StringType),
		cel.Variable("attempts", cel.IntType),
	)
	if err != nil {
		return Rule{}, fmt.Errorf("cel rule %q: create environment: %w", name, err)
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return Rule{}, fmt.Errorf("cel rule %q: compile: %w", name, iss.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return Rule{}, fmt.Errorf("cel rule %q: expression must evaluate to bool, got %s", name, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return Rule{}, fmt.Errorf("cel rule %q: build program: %w", name, err)
	}

	return Rule{
		Name: name,
		Match: func(err error, ectx types.Context) bool {
			out, _, evalErr := prg.Eval(map[string]any{
				"code":      Code(err),
				"message":   err.Error(),
				"tool":      ectx.Tool,
				"operation": ectx.Operation,
				"attempts":  int64(ectx.PreviousAttempts),
			})
			if evalErr != nil {
				return false
			}
			matched, ok := out.Value().(bool)
			return ok && matched
		},
		Result: result,
	}, nil
}
