package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/e-CODEX/connector-sub004/internal/message"
)

// Evaluator compiles and evaluates routing rule match expressions against a
// message's routing-relevant attributes.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("service", cel.StringType),
		cel.Variable("service_type", cel.StringType),
		cel.Variable("from_party_id", cel.StringType),
		cel.Variable("from_party_id_type", cel.StringType),
		cel.Variable("from_party_role", cel.StringType),
		cel.Variable("to_party_id", cel.StringType),
		cel.Variable("conversation_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// ValidateMatchExpression additionally requires the expression to produce a
// boolean, the only output a routing rule may have.
func (e *Evaluator) ValidateMatchExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("match expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

func (e *Evaluator) EvaluateMatch(ctx context.Context, expression string, details *message.MessageDetails) (bool, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return false, fmt.Errorf("match expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("failed to create CEL program: %w", err)
	}

	result, _, err := program.ContextEval(ctx, detailsToVars(details))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func detailsToVars(details *message.MessageDetails) map[string]interface{} {
	return map[string]interface{}{
		"action":             details.Action,
		"service":            details.Service.Name,
		"service_type":       details.Service.Type,
		"from_party_id":      details.FromParty.PartyID,
		"from_party_id_type": details.FromParty.PartyIDType,
		"from_party_role":    details.FromParty.Role,
		"to_party_id":        details.ToParty.PartyID,
		"conversation_id":    details.ConversationID,
	}
}
