package expr

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Validator checks a metric expression against its data source. The catalog
// treats expressions as opaque beyond pass/fail; the real engine that
// executes them lives outside this service.
type Validator interface {
	Validate(ctx context.Context, expression string, sourceID snowflake.ID) error
}

// ValidationError carries the diagnostic message from the validator.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SyntacticValidator is the built-in validator: it rejects expressions that
// could never be accepted by any engine (empty, oversized, unbalanced,
// statement-injecting) without consulting the data source.
type SyntacticValidator struct {
	maxLength int
}

func NewSyntacticValidator(maxLength int) *SyntacticValidator {
	if maxLength <= 0 {
		maxLength = 4096
	}
	return &SyntacticValidator{maxLength: maxLength}
}

func (v *SyntacticValidator) Validate(ctx context.Context, expression string, sourceID snowflake.ID) error {
	_ = ctx

	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &ValidationError{Message: "expression is empty"}
	}
	if len(expression) > v.maxLength {
		return &ValidationError{Message: fmt.Sprintf("expression exceeds %d characters", v.maxLength)}
	}
	if sourceID == 0 {
		return &ValidationError{Message: "expression has no data source"}
	}
	if strings.Contains(expression, ";") {
		return &ValidationError{Message: "expression must be a single term"}
	}
	if strings.Contains(expression, "--") || strings.Contains(expression, "/*") {
		return &ValidationError{Message: "expression must not contain comments"}
	}
	if err := checkBalance(expression); err != nil {
		return err
	}
	return nil
}

func checkBalance(expression string) error {
	depth := 0
	var quote rune
	for _, r := range expression {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"', '`':
			quote = r
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return &ValidationError{Message: "unbalanced parentheses"}
			}
		}
	}
	if quote != 0 {
		return &ValidationError{Message: "unterminated quote"}
	}
	if depth != 0 {
		return &ValidationError{Message: "unbalanced parentheses"}
	}
	return nil
}

var _ Validator = (*SyntacticValidator)(nil)
