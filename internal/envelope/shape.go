package envelope

// Shape selects the output size/fidelity trade-off.
type Shape string

const (
	ShapeVerbose Shape = "verbose"
	ShapeCompact Shape = "compact"
	ShapeMinimal Shape = "minimal"
)

// ParseShape normalizes a user-supplied shape string; unknown values fall
// back to verbose.
func ParseShape(s string) Shape {
	switch Shape(s) {
	case ShapeCompact, ShapeMinimal, ShapeVerbose:
		return Shape(s)
	}
	return ShapeVerbose
}

// minimalKeys is the allow-list for the minimal shape.
var minimalKeys = map[string]struct{}{
	"ok":             {},
	"kind":           {},
	"schema_version": {},
	"elapsed_ms":     {},
	"top_chunks":     {},
	"warning_codes":  {},
	"warning_hints":  {},
	"error":          {},
}

// Apply reshapes the serialized envelope value in place and returns it.
// Compact moves per-result chunks under extract.chunks; minimal retains only
// the allow-listed keys.
func Apply(value map[string]any, shape Shape) map[string]any {
	switch shape {
	case ShapeMinimal:
		out := map[string]any{}
		for k, v := range value {
			if _, keep := minimalKeys[k]; keep {
				out[k] = v
			}
		}
		return out
	case ShapeCompact:
		compactResults(value)
		return value
	default:
		return value
	}
}

// compactResults removes the top-level duplicate chunk lists from each
// per-URL result, inlining them under the result's extract object.
func compactResults(value map[string]any) {
	results, ok := value["results"].([]any)
	if !ok {
		return
	}
	for _, r := range results {
		res, ok := r.(map[string]any)
		if !ok {
			continue
		}
		chunks, has := res["chunks"]
		if !has {
			continue
		}
		ext, ok := res["extract"].(map[string]any)
		if !ok {
			ext = map[string]any{}
			res["extract"] = ext
		}
		ext["chunks"] = chunks
		delete(res, "chunks")
	}
}
