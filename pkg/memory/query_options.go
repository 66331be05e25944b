package memory

// ListOpt is a functional option for [MessageStore.List].
type ListOpt func(*listOptions)

type listOptions struct {
	limit   int
	session string
}

// WithLimit caps the number of records returned. Zero or negative means
// no limit.
func WithLimit(n int) ListOpt {
	return func(o *listOptions) { o.limit = n }
}

// WithSession restricts the result to one session.
func WithSession(id string) ListOpt {
	return func(o *listOptions) { o.session = id }
}

// ListParams holds the resolved parameters from a slice of [ListOpt].
type ListParams struct {
	Limit   int
	Session string
}

// ApplyListOpts applies opts and returns the resolved parameters. It lets
// storage backends in other packages read the option values without access
// to the unexported options type.
func ApplyListOpts(opts []ListOpt) ListParams {
	o := &listOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.limit < 0 {
		o.limit = 0
	}
	return ListParams{Limit: o.limit, Session: o.session}
}
