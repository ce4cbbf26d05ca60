package routing

import "github.com/e-CODEX/connector-sub004/pkg/cel"

// ValidateExpression checks a rule's match expression before it is stored:
// it must compile and produce a boolean.
func ValidateExpression(expression string) error {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return err
	}
	return evaluator.ValidateMatchExpression(expression)
}
