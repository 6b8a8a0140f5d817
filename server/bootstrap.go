package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/nsa-yoda/ReplyXL/capability"
	"github.com/nsa-yoda/ReplyXL/config"
	"github.com/nsa-yoda/ReplyXL/imagize"
	"github.com/nsa-yoda/ReplyXL/logger"
	"github.com/nsa-yoda/ReplyXL/route"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type State int

const (
	Unconfigured State = iota
	ConfigLoaded
	TableSelected
	Serving
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "Unconfigured"
	case ConfigLoaded:
		return "ConfigLoaded"
	case TableSelected:
		return "TableSelected"
	case Serving:
		return "Serving"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateError is returned when a bootstrap step is called out of order.
type StateError struct {
	Want State
	Got  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("bootstrap: expected state %s, in %s", e.Want, e.Got)
}

const (
	AllowTable = "allow-generation"
	DenyTable  = "deny-generation"
)

// Bootstrap walks the process from configuration to serving. Every step
// happens once and in order: LoadConfig, SelectTable, Serve.
type Bootstrap struct {
	mu    sync.Mutex
	state State

	settings  config.Settings
	table     *route.Table
	tableName string

	registry *prometheus.Registry
	metrics  *route.Metrics
	active   *prometheus.GaugeVec
}

func NewBootstrap() *Bootstrap {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	active := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "imagize_active_table",
			Help: "Route table selected at startup (1 for the active one)",
		},
		[]string{"table"},
	)
	reg.MustRegister(active)

	return &Bootstrap{
		registry: reg,
		metrics:  route.NewMetrics(reg),
		active:   active,
	}
}

func (b *Bootstrap) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Settings returns the loaded settings. Valid from ConfigLoaded on.
func (b *Bootstrap) Settings() config.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings
}

// TableName reports which table SelectTable chose.
func (b *Bootstrap) TableName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tableName
}

func (b *Bootstrap) Registry() *prometheus.Registry { return b.registry }

// LoadConfig reads the config file at path, or uses defaults when path is
// empty. A non-nil portOverride replaces the configured port.
func (b *Bootstrap) LoadConfig(path string, portOverride *int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Unconfigured {
		return &StateError{Want: Unconfigured, Got: b.state}
	}

	settings, err := config.Load(path)
	if err != nil {
		return err
	}

	if portOverride != nil {
		settings = settings.WithPort(*portOverride)
		if err := settings.Validate(); err != nil {
			return &config.LoadError{Path: path, Err: err}
		}
	}

	b.settings = settings
	b.state = ConfigLoaded

	logger.Info("Configuration loaded",
		zap.String("path", path),
		zap.String("environment", settings.Environment),
		zap.Int("port", settings.Port))
	return nil
}

// SelectTable builds the route tables and fixes the one to serve for the
// life of the process. gen may be nil only in a restricted environment.
func (b *Bootstrap) SelectTable(gen imagize.Generator) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != ConfigLoaded {
		return &StateError{Want: ConfigLoaded, Got: b.state}
	}

	restricted := b.settings.Restricted()

	var (
		table *route.Table
		name  string
	)
	if gen == nil && restricted {
		mounts, err := NewMounts(b.settings)
		if err != nil {
			return err
		}
		if table, err = route.Build(Patterns(mounts, capability.Deny{})); err != nil {
			return err
		}
		name = DenyTable
	} else {
		allow, deny, err := BuildTables(b.settings, gen)
		if err != nil {
			return err
		}
		table, name = allow, AllowTable
		if restricted {
			table, name = deny, DenyTable
		}
	}

	b.table = table
	b.tableName = name
	b.state = TableSelected

	b.active.WithLabelValues(AllowTable).Set(0)
	b.active.WithLabelValues(DenyTable).Set(0)
	b.active.WithLabelValues(name).Set(1)

	logger.Info("Route table selected",
		zap.String("environment", b.settings.Environment),
		zap.String("table", name))
	return nil
}

// Handler returns the request handler for the selected table.
func (b *Bootstrap) Handler() (http.Handler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state < TableSelected {
		return nil, &StateError{Want: TableSelected, Got: b.state}
	}
	return b.handler(), nil
}

func (b *Bootstrap) handler() http.Handler {
	var h http.Handler = route.NewDispatcher(b.table,
		route.WithLogger(logger.Get()),
		route.WithMetrics(b.metrics),
	)

	if len(b.settings.CorsAllowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:     b.settings.CorsAllowedOrigins,
			AllowedMethods:     []string{http.MethodGet, http.MethodHead, http.MethodPost},
			AllowedHeaders:     []string{"*"},
			OptionsPassthrough: true,
		}).Handler(h)
	}
	return h
}
