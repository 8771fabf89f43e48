package validation

import (
	"fmt"
	"sync"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"

	"github.com/google/cel-go/cel"
)

// docVar is the name under which the record is exposed to rules
const docVar = "doc"

// RuleValidator evaluates one compiled CEL rule per data source.
// A rule must evaluate to true for the record to be accepted.
type RuleValidator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]compiledRule
}

type compiledRule struct {
	expr    string
	program cel.Program
}

var _ repository.RecordValidator = (*RuleValidator)(nil)

// NewRuleValidator creates a validator with no rules registered
func NewRuleValidator() (*RuleValidator, error) {
	env, err := cel.NewEnv(cel.Variable(docVar, cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, apperrors.NewInternalError("create CEL environment").WithCause(err)
	}
	return &RuleValidator{env: env, programs: make(map[string]compiledRule)}, nil
}

// Register compiles rule for source. An empty rule removes any previous one.
func (v *RuleValidator) Register(source, rule string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if rule == "" {
		delete(v.programs, source)
		return nil
	}

	ast, issues := v.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return apperrors.NewValidationError(fmt.Sprintf("rule for source %q does not compile", source)).
			WithCause(issues.Err()).
			WithDetail("rule", rule)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return apperrors.NewValidationError(fmt.Sprintf("rule for source %q must evaluate to bool", source)).
			WithDetail("rule", rule)
	}

	program, err := v.env.Program(ast)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("rule for source %q cannot be planned", source)).WithCause(err)
	}
	v.programs[source] = compiledRule{expr: rule, program: program}
	return nil
}

// RegisterSources compiles the rule of every source that declares one
func (v *RuleValidator) RegisterSources(sources []model.DataSource) error {
	ve := apperrors.NewValidationErrors()
	for _, src := range sources {
		if err := v.Register(src.Name, src.Rule); err != nil {
			ve.Add("sources."+src.Name+".rule", err.Error(), src.Rule)
		}
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Validate implements repository.RecordValidator
func (v *RuleValidator) Validate(source string, doc model.Document) error {
	v.mu.RLock()
	rule, ok := v.programs[source]
	v.mu.RUnlock()
	if !ok {
		return nil
	}

	out, _, err := rule.program.Eval(map[string]interface{}{docVar: map[string]interface{}(doc)})
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("record of %q fails rule: %v", source, err)).
			WithDetail("rule", rule.expr)
	}
	passed, isBool := out.Value().(bool)
	if !isBool {
		return apperrors.NewValidationError(fmt.Sprintf("rule for source %q did not return a boolean", source)).
			WithDetail("rule", rule.expr)
	}
	if !passed {
		return apperrors.NewValidationError(fmt.Sprintf("record of %q rejected by rule", source)).
			WithDetail("rule", rule.expr)
	}
	return nil
}

// Rules returns the registered rule expressions by source
func (v *RuleValidator) Rules() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]string, len(v.programs))
	for src, r := range v.programs {
		out[src] = r.expr
	}
	return out
}
