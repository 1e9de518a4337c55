package dedupe

type options struct {
	expectedSize int
}

// Option applies a configuration option to the deduper.
type Option func(*options)

// WithExpectedSize pre-sizes the seen set. Non-positive values are ignored.
func WithExpectedSize(n int) Option {
	return func(o *options) {
		o.expectedSize = n
	}
}
