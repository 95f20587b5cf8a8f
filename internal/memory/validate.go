package memory

const minContentLength = 30

const patternRecommendedLength = 100

// Validate enforces the type-conditioned required-field rules of spec §3
// against a Memory about to be stored. It does not mutate m.
func Validate(m Memory) error {
	var missing []string

	if len(m.Content) < minContentLength {
		missing = append(missing, "content (< 30 characters)")
	}

	switch m.Type {
	case TypeError:
		if m.ErrorMessage == "" {
			missing = append(missing, "error_message")
		}
		if m.Solution == "" && m.Prevention == "" {
			missing = append(missing, "solution or prevention")
		}
	case TypeDecision:
		if m.Rationale == "" {
			missing = append(missing, "rationale")
		}
		if m.Alternatives == "" {
			missing = append(missing, "alternatives")
		}
	case TypeDocs:
		if m.Source == "" {
			missing = append(missing, "source")
		}
	case TypePattern, TypeLearning, TypeContext:
		// no additional required fields beyond content length.
	default:
		missing = append(missing, "type (unrecognized)")
	}

	if len(missing) > 0 {
		return &ValidationError{Fields: missing, Reason: "required fields missing for type " + string(m.Type)}
	}
	return nil
}

// ValidateFilter rejects unknown filter keys encoded in a raw map, for
// callers that build a Filter from loosely-typed input before constructing
// the typed Filter struct. Collection.Search itself only ever receives a
// typed Filter, and the CLI builds a typed Filter directly without calling
// this.
func ValidateFilter(raw map[string]any) error {
	allowed := map[string]bool{
		"type": true, "project": true, "tags": true,
		"created_after": true, "created_before": true,
		"pinned": true, "resolved": true, "min_importance": true,
	}
	var unknown []string
	for k := range raw {
		if !allowed[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return &ValidationError{Fields: unknown, Reason: "unknown filter keys"}
	}
	return nil
}
