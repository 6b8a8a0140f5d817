package server

import (
	"errors"
	"net/http"

	"github.com/nsa-yoda/ReplyXL/capability"
	"github.com/nsa-yoda/ReplyXL/config"
	"github.com/nsa-yoda/ReplyXL/imagize"
	"github.com/nsa-yoda/ReplyXL/logger"
	"github.com/nsa-yoda/ReplyXL/route"
	"go.uber.org/zap"
)

// Mounts are the static directories exposed under /v1.
type Mounts struct {
	Static    *capability.Static
	Public    *capability.Static
	RootFiles *capability.Static
}

// NewMounts resolves every static root named in settings. A missing root is
// a startup error, not a stream of 404s later.
func NewMounts(settings config.Settings) (Mounts, error) {
	var m Mounts

	roots := []struct {
		pattern string
		dir     string
		dst     **capability.Static
	}{
		{staticPattern, settings.StaticDir, &m.Static},
		{publicPattern, settings.TemplateDir, &m.Public},
		{rootFilesPattern, settings.RootFilesDir, &m.RootFiles},
	}

	for i, r := range roots {
		s, err := capability.NewStatic(r.dir)
		if err != nil {
			return Mounts{}, &route.BuildError{Index: i, Pattern: r.pattern, Reason: "static root unavailable", Err: err}
		}
		*r.dst = s
		logger.Debug("Static mount", zap.String("pattern", r.pattern), zap.String("root", s.Root()))
	}
	return m, nil
}

const (
	generationPattern = `/v1/imagize`
	staticPattern     = `/v1/static/(?P<file>.*)`
	publicPattern     = `/v1/public/(?P<file>.*)`
	rootFilesPattern  = `/v1/(?P<file>favicon\.ico|robots\.txt)`
)

var get = []string{http.MethodGet}

// Patterns is the one ordered route list both tables are built from. Only
// the capability bound to the generation route differs between them.
func Patterns(m Mounts, generation route.Capability) []route.Route {
	return []route.Route{
		{Name: "imagize", Pattern: generationPattern, Capability: generation},
		{Name: "static", Pattern: staticPattern, Methods: get, Capability: m.Static},
		{Name: "public", Pattern: publicPattern, Methods: get, Capability: m.Public},
		{Name: "statuscheck", Pattern: `/statuscheck`, Methods: get, Capability: capability.Status{}},
		{Name: "f5", Pattern: `/f5`, Methods: get, Capability: capability.HealthMonitor{}},
		{Name: "root-files", Pattern: rootFilesPattern, Methods: get, Capability: m.RootFiles},
		{Name: "v1", Pattern: `/v1/.*`, Capability: capability.Deny{}},
		{Name: "missing", Pattern: route.CatchAll, Capability: capability.Missing{}},
	}
}

// BuildTables builds the allow-generation and deny-generation tables.
func BuildTables(settings config.Settings, gen imagize.Generator) (allow, deny *route.Table, err error) {
	if gen == nil {
		return nil, nil, errors.New("generation table needs a generator")
	}

	mounts, err := NewMounts(settings)
	if err != nil {
		return nil, nil, err
	}

	allow, err = route.Build(Patterns(mounts, capability.NewGeneration(gen)))
	if err != nil {
		return nil, nil, err
	}

	deny, err = route.Build(Patterns(mounts, capability.Deny{}))
	if err != nil {
		return nil, nil, err
	}
	return allow, deny, nil
}
