//go:build !linux

package gpio

// Open is unavailable off Linux; use Null for dry runs.
func Open(chip string, offset int) (Line, error) {
	return nil, ErrUnsupported
}
