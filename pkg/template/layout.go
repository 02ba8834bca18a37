package template

// RenderLayout walks a nested map/list structure, rendering every string
// leaf as a template and recursing into maps and lists. Non-string scalar
// leaves (numbers, bools) pass through unchanged. An error from any leaf
// aborts the whole walk.
func RenderLayout(layout any, ctx map[string]any) (any, error) {
	switch t := layout.(type) {
	case string:
		return Render(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rendered, err := RenderLayout(v, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rendered, err := RenderLayout(v, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return layout, nil
	}
}
