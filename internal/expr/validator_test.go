package expr

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestSyntacticValidator(t *testing.T) {
	v := NewSyntacticValidator(64)
	ctx := context.Background()
	sourceID := snowflake.ID(42)

	cases := []struct {
		name       string
		expression string
		sourceID   snowflake.ID
		wantErr    string
	}{
		{name: "valid aggregate", expression: "SUM(amount)", sourceID: sourceID},
		{name: "valid nested", expression: "SUM(amount) / COUNT(DISTINCT user_id)", sourceID: sourceID},
		{name: "valid quoted", expression: `COUNT_IF(status = 'paid')`, sourceID: sourceID},
		{name: "empty", expression: "   ", sourceID: sourceID, wantErr: "empty"},
		{name: "oversized", expression: "SUM(" + strings.Repeat("a", 80) + ")", sourceID: sourceID, wantErr: "exceeds"},
		{name: "no source", expression: "SUM(amount)", sourceID: 0, wantErr: "no data source"},
		{name: "statement separator", expression: "SUM(amount); DROP TABLE x", sourceID: sourceID, wantErr: "single term"},
		{name: "line comment", expression: "SUM(amount) -- hidden", sourceID: sourceID, wantErr: "comments"},
		{name: "block comment", expression: "SUM(amount) /* hidden */", sourceID: sourceID, wantErr: "comments"},
		{name: "unbalanced open", expression: "SUM((amount)", sourceID: sourceID, wantErr: "parentheses"},
		{name: "unbalanced close", expression: "SUM(amount))", sourceID: sourceID, wantErr: "parentheses"},
		{name: "unterminated quote", expression: "COUNT_IF(status = 'paid)", sourceID: sourceID, wantErr: "quote"},
		{name: "paren inside quote ignored", expression: "COUNT_IF(note = 'a)b')", sourceID: sourceID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(ctx, tc.expression, tc.sourceID)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewSyntacticValidator_DefaultLimit(t *testing.T) {
	v := NewSyntacticValidator(0)
	err := v.Validate(context.Background(), "SUM("+strings.Repeat("a", 4096)+")", snowflake.ID(1))
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}
