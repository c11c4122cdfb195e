package audit

import "context"

// Origin is where an audited request came from.
type Origin struct {
	IP        string
	UserAgent string
}

type originKey struct{}

func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the zero Origin for calls that did not arrive over HTTP.
func OriginFrom(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}

// WithOrigin fills IP and UserAgent from ctx unless they are already set.
func (e Event) WithOrigin(ctx context.Context) Event {
	o := OriginFrom(ctx)
	if e.IP == "" {
		e.IP = o.IP
	}
	if e.UserAgent == "" {
		e.UserAgent = o.UserAgent
	}
	return e
}
