package protocol

const (
	// MaxMessageSize is the largest frame Decode accepts.
	MaxMessageSize = 1 << 20

	// MaxEventDepth limits the nesting depth of a motion's event payload.
	// Event payloads are user-controlled DOM descriptions; 64 levels is far
	// beyond any real target descriptor.
	MaxEventDepth = 64
)

// checkDepth walks a decoded JSON value and fails once nesting passes max.
func checkDepth(v any, depth, max int) error {
	if depth > max {
		return ErrMaxDepthExceeded
	}
	switch val := v.(type) {
	case map[string]any:
		for _, child := range val {
			if err := checkDepth(child, depth+1, max); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range val {
			if err := checkDepth(child, depth+1, max); err != nil {
				return err
			}
		}
	}
	return nil
}
