package risk

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// CustomRule is an operator-defined rule expressed in CEL. It runs after the
// built-in rules. The expression sees:
//
//	intent.to, intent.from, intent.function, intent.token  string
//	intent.value                                           double
//	intent.urgent                                          bool
//	intent.args                                            list(string)
//	known                                                  bool (destination is a registered contract)
//	policy.daily_limit                                     double
//	policy.timelock_hours                                  int
type CustomRule struct {
	ID             string `mapstructure:"id"`
	Expression     string `mapstructure:"expression"`
	Penalty        int    `mapstructure:"penalty"`
	Severity       string `mapstructure:"severity"`
	Title          string `mapstructure:"title"`
	Description    string `mapstructure:"description"`
	Recommendation string `mapstructure:"recommendation"`
	DelayHours     int    `mapstructure:"delay_hours"`
}

type compiledRule struct {
	rule     CustomRule
	severity Level
	program  cel.Program
}

func newCustomEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("intent", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("policy", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("known", cel.BoolType),
	)
}

func compileRules(rules []CustomRule) ([]compiledRule, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	env, err := newCustomEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("custom rule: id is required")
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, fmt.Errorf("custom rule %s: duplicate id", rule.ID)
		}
		seen[rule.ID] = struct{}{}

		severity := Level(strings.ToUpper(strings.TrimSpace(rule.Severity)))
		switch severity {
		case LevelSafe, LevelCaution, LevelDanger:
		case "":
			severity = LevelCaution
		default:
			// CRITICAL is reserved for the blocklist so it always leads the findings.
			return nil, fmt.Errorf("custom rule %s: severity %q not allowed", rule.ID, rule.Severity)
		}
		if rule.Penalty < 0 || rule.DelayHours < 0 {
			return nil, fmt.Errorf("custom rule %s: penalty and delay_hours must not be negative", rule.ID)
		}
		if rule.DelayHours > MaxDelayHours {
			return nil, fmt.Errorf("custom rule %s: delay_hours must not exceed %d", rule.ID, MaxDelayHours)
		}

		ast, iss := env.Compile(rule.Expression)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("custom rule %s: compile: %w", rule.ID, iss.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("custom rule %s: expression must evaluate to bool", rule.ID)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("custom rule %s: program: %w", rule.ID, err)
		}

		compiled = append(compiled, compiledRule{rule: rule, severity: severity, program: prg})
	}
	return compiled, nil
}

func (c compiledRule) matches(vars map[string]any) (bool, error) {
	out, _, err := c.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("custom rule %s: eval: %w", c.rule.ID, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("custom rule %s: non-bool result", c.rule.ID)
	}
	return matched, nil
}

func (c compiledRule) finding() Finding {
	title := c.rule.Title
	if title == "" {
		title = c.rule.ID
	}
	return Finding{
		ID:             c.rule.ID,
		Type:           c.severity,
		Title:          title,
		Description:    c.rule.Description,
		Recommendation: c.rule.Recommendation,
	}
}
