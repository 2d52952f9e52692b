package engine

import (
	"fmt"
	"strings"

	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/template"
)

// EvaluateCondition resolves both operands against the template context and
// applies the operator. Supported operators are equals, contains and exists.
func EvaluateCondition(condition models.Condition, templateCtx map[string]interface{}) (bool, error) {
	left := template.ResolveString(condition.Left, templateCtx)
	right := template.ResolveString(condition.Right, templateCtx)

	switch condition.Op {
	case "equals":
		return left == right, nil
	case "contains":
		return strings.Contains(left, right), nil
	case "exists":
		return left != "", nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", condition.Op)
	}
}
