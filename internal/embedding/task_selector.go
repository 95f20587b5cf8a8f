package embedding

import (
	"regexp"
	"strings"
)

// ContentType classifies what kind of text is being embedded, so a
// task-type-aware dense engine (GenAI) can pick the optimal embedding task.
// Grounded on the teacher's internal/embedding/task_selector.go.
type ContentType string

const (
	ContentTypeCode          ContentType = "code"
	ContentTypeDocumentation ContentType = "documentation"
	ContentTypeQuery         ContentType = "query"
	ContentTypeKnowledgeAtom ContentType = "knowledge_atom"
)

// SelectTaskType maps a ContentType (and whether this is a query-time or
// index-time embed) to a GenAI task type string.
func SelectTaskType(ct ContentType, isQuery bool) string {
	switch ct {
	case ContentTypeCode:
		if isQuery {
			return "CODE_RETRIEVAL_QUERY"
		}
		return "RETRIEVAL_DOCUMENT"
	case ContentTypeQuery:
		return "RETRIEVAL_QUERY"
	case ContentTypeDocumentation:
		return "RETRIEVAL_DOCUMENT"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}

var exactTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*(Error|Exception)$`),             // ValueError, NullPointerException
	regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.[a-zA-Z_][A-Za-z0-9_]*$`), // pkg.Symbol / module.func
	regexp.MustCompile(`^0x[0-9a-fA-F]+$`),                                 // hex addresses
	regexp.MustCompile(`^[A-Z_][A-Z0-9_]{2,}$`),                            // SCREAMING_CASE constants/error codes
	regexp.MustCompile(`^\s*at\s+\S+\(.*\)\s*$`),                           // a single stack-trace frame
}

// IsExactToken reports whether query looks like a single exact identifier —
// an error code, class name, or stack-trace symbol — rather than natural
// language. Used by the Memory Collection read path (spec §4.5 step 3) to
// route such queries to sparse-only retrieval instead of fused hybrid.
func IsExactToken(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, " ") && !strings.HasPrefix(strings.ToLower(trimmed), "at ") {
		// Multi-word input is natural language unless it's a stack frame.
		for _, re := range exactTokenPatterns {
			if re.MatchString(trimmed) {
				return true
			}
		}
		return false
	}
	for _, re := range exactTokenPatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}
