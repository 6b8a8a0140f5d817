package route

import (
	"fmt"
	"net/http"
	"regexp"

	"golang.org/x/exp/slices"
)

// CatchAll is the pattern every table must end with.
const CatchAll = ".*"

// Capability handles a request matched by a Route.
// Returning an error means the capability failed internally; the
// dispatcher turns it into a generic 500 unless a response was already
// written.
type Capability interface {
	Serve(w http.ResponseWriter, r *http.Request, p Params) error
}

// CapabilityFunc adapts a plain function to Capability.
type CapabilityFunc func(w http.ResponseWriter, r *http.Request, p Params) error

func (f CapabilityFunc) Serve(w http.ResponseWriter, r *http.Request, p Params) error {
	return f(w, r, p)
}

// Params holds the groups captured by a route pattern.
type Params struct {
	values []string
	names  map[string]string
}

// At returns the i-th captured group (0-based), or "" if absent.
func (p Params) At(i int) string {
	if i < 0 || i >= len(p.values) {
		return ""
	}
	return p.values[i]
}

// Get returns a named group, e.g. (?P<file>.*).
func (p Params) Get(name string) string {
	return p.names[name]
}

func (p Params) Len() int { return len(p.values) }

// Route binds a path pattern to a Capability.
type Route struct {
	// Name labels the route in logs and metrics. Defaults to Pattern.
	Name string

	// Pattern is a regular expression matched against the whole request path.
	Pattern string

	// Methods restricts the route. Empty means any method; GET implies HEAD.
	Methods []string

	Capability Capability
}

// Allows reports whether method may be served by the route.
func (r Route) Allows(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m == method || (m == http.MethodGet && method == http.MethodHead) {
			return true
		}
	}
	return false
}

type compiledRoute struct {
	Route
	re *regexp.Regexp
}

// Table is an ordered, immutable list of routes. Safe for concurrent use.
type Table struct {
	routes []compiledRoute
}

// BuildError reports a route table that cannot be served.
type BuildError struct {
	Index   int
	Pattern string
	Reason  string
	Err     error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("route %d (%q): %s", e.Index, e.Pattern, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// Build compiles routes in the given order. Declaration order is match
// precedence, so it is preserved exactly.
func Build(routes []Route) (*Table, error) {
	if len(routes) == 0 {
		return nil, &BuildError{Index: -1, Reason: "table is empty"}
	}

	compiled := make([]compiledRoute, 0, len(routes))
	for i, r := range routes {
		if r.Capability == nil {
			return nil, &BuildError{Index: i, Pattern: r.Pattern, Reason: "nil capability"}
		}

		re, err := regexp.Compile(`(?s)^(?:` + r.Pattern + `)$`)
		if err != nil {
			return nil, &BuildError{Index: i, Pattern: r.Pattern, Reason: "invalid pattern", Err: err}
		}

		if r.Name == "" {
			r.Name = r.Pattern
		}
		r.Methods = slices.Clone(r.Methods)
		compiled = append(compiled, compiledRoute{Route: r, re: re})
	}

	last := compiled[len(compiled)-1]
	if last.Pattern != CatchAll || len(last.Methods) != 0 {
		return nil, &BuildError{
			Index:   len(compiled) - 1,
			Pattern: last.Pattern,
			Reason:  "last route must be a catch-all " + CatchAll + " accepting any method",
		}
	}

	return &Table{routes: compiled}, nil
}

// Routes returns a copy of the table's routes in match order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		out[i] = r.Route
		out[i].Methods = slices.Clone(r.Methods)
	}
	return out
}

// Match returns the first route whose pattern matches path.
func (t *Table) Match(path string) (Route, Params, bool) {
	for _, r := range t.routes {
		groups := r.re.FindStringSubmatch(path)
		if groups == nil {
			continue
		}
		return r.Route, newParams(r.re, groups), true
	}
	return Route{}, Params{}, false
}

func newParams(re *regexp.Regexp, groups []string) Params {
	p := Params{values: groups[1:]}
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if p.names == nil {
			p.names = map[string]string{}
		}
		p.names[name] = groups[i]
	}
	return p
}
