package formsync

import (
	"fmt"
	"log/slog"

	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/options"
	"github.com/admitly/admissions/pkg/urlparam"
)

// Phase is the hydration state of a controller.
type Phase int

const (
	// PhaseHydrating is the initial phase: the form shows defaults and waits
	// for metadata and a query string.
	PhaseHydrating Phase = iota

	// PhaseReady is entered once, after the first hydration. Later external
	// query changes re-hydrate without leaving it.
	PhaseReady
)

func (p Phase) String() string {
	if p == PhaseReady {
		return "ready"
	}
	return "hydrating"
}

// SyncResult reports what a Sync call did.
type SyncResult int

const (
	// SyncNotReady means no hydration has happened yet.
	SyncNotReady SyncResult = iota

	// SyncSettled means the post-hydration observation was absorbed.
	SyncSettled

	// SyncUnchanged means the encoded state equals the last write.
	SyncUnchanged

	// SyncWritten means a new query string was written.
	SyncWritten
)

func (r SyncResult) String() string {
	switch r {
	case SyncSettled:
		return "settled"
	case SyncUnchanged:
		return "unchanged"
	case SyncWritten:
		return "written"
	}
	return "not_ready"
}

// Hooks receive controller events. All fields are optional.
type Hooks struct {
	// OnHydrated runs after every hydration with the new state. initial is
	// true for the Hydrating -> Ready transition.
	OnHydrated func(st form.State, initial bool)

	// OnWrite runs after a query string was written.
	OnWrite func(query string)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHooks installs event hooks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) {
		c.hooks = h
	}
}

// Controller synchronises one form instance with its URL.
type Controller struct {
	schema *form.Schema
	nav    *urlparam.Navigator
	logger *slog.Logger
	hooks  Hooks

	phase    Phase
	catalog  options.Catalog
	hasMeta  bool
	hydrated bool

	state    form.State
	snapshot form.State

	// synced is the state seen by the latest Sync; an unchanged state makes
	// Sync a no-op, like an effect whose dependencies did not change.
	synced form.State

	// skipNextSync is armed by hydration and consumed by the next Sync.
	skipNextSync bool

	// lastObserved is what the address bar currently shows: the last
	// reported query or the last write, whichever came later.
	lastObserved string
	observed     bool

	lastWritten string
	hasWritten  bool

	// pending holds a query that arrived before metadata.
	pending    string
	hasPending bool
}

// New creates a controller for schema that writes through nav. The state
// starts at the schema defaults.
func New(schema *form.Schema, nav *urlparam.Navigator, opts ...Option) *Controller {
	if nav == nil {
		nav = urlparam.NewNavigator(nil)
	}
	c := &Controller{
		schema: schema,
		nav:    nav,
		logger: slog.Default().With("component", "formsync"),
		phase:  PhaseHydrating,
		state:  schema.Defaults(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("form", schema.Name)
	return c
}

// Schema returns the form schema.
func (c *Controller) Schema() *form.Schema { return c.schema }

// Phase returns the current phase.
func (c *Controller) Phase() Phase { return c.phase }

// Hydrated reports whether at least one hydration has completed. Dependent
// effects such as address mirroring wait for it.
func (c *Controller) Hydrated() bool { return c.hydrated }

// State returns a copy of the current state.
func (c *Controller) State() form.State { return c.state.Clone() }

// Snapshot returns a copy of the state produced by the latest hydration.
func (c *Controller) Snapshot() form.State { return c.snapshot.Clone() }

// Catalog returns the metadata snapshot, nil before SetMetadata.
func (c *Controller) Catalog() options.Catalog { return c.catalog }

// LastWritten returns the last query string the controller wrote since the
// latest hydration.
func (c *Controller) LastWritten() string { return c.lastWritten }

// SetMetadata installs the option catalog. A query that arrived earlier is
// hydrated now.
func (c *Controller) SetMetadata(catalog options.Catalog) {
	if catalog == nil {
		catalog = options.Catalog{}
	}
	c.catalog = catalog
	c.hasMeta = true
	if c.hasPending {
		q := c.pending
		c.pending, c.hasPending = "", false
		c.hydrate(q)
	}
}

// ObserveQuery reports the query string currently in the address bar. It
// returns true when the report caused a hydration.
//
// A query equal to the previous report, or to the controller's own last
// write, is not an external change and is ignored.
func (c *Controller) ObserveQuery(query string) bool {
	query = urlparam.Canonical(query)
	if c.observed && query == c.lastObserved {
		return false
	}
	c.lastObserved, c.observed = query, true
	if c.hasWritten && query == c.lastWritten {
		return false
	}

	if !c.hasMeta {
		c.pending, c.hasPending = query, true
		return false
	}
	c.hydrate(query)
	return true
}

// hydrate resets the state from query and arms the sync guard in the same
// step, so the Sync that observes the reset does not write it back.
func (c *Controller) hydrate(query string) {
	c.state = Hydrate(c.schema, query, c.catalog)
	c.snapshot = c.state.Clone()
	c.synced = nil
	c.skipNextSync = true

	// The address bar no longer shows our last write.
	c.nav.Reset()
	c.hasWritten = false

	initial := c.phase == PhaseHydrating
	c.phase = PhaseReady
	c.hydrated = true

	c.logger.Debug("hydrated", "query", query, "initial", initial)
	if c.hooks.OnHydrated != nil {
		c.hooks.OnHydrated(c.State(), initial)
	}
}

// Set stores v in the named field and runs mirror rules. It does not write
// the URL; call Sync after the change has been rendered.
func (c *Controller) Set(name string, v form.Value) error {
	if err := c.schema.Check(name, v); err != nil {
		return err
	}
	prev := c.state[name]
	if v.Shape() == form.ShapeList {
		v = form.List(v.Items()...)
	}
	c.state[name] = v
	if c.hydrated && !prev.Equal(v) {
		c.applyMirrors(name)
	}
	return nil
}

// Sync writes the current state to the URL if it changed. It is meant to
// run after every render once hydrated.
func (c *Controller) Sync() SyncResult {
	if !c.hydrated {
		return SyncNotReady
	}
	if c.skipNextSync {
		c.skipNextSync = false
		if c.state.Equal(c.snapshot) {
			c.synced = c.snapshot.Clone()
			return SyncSettled
		}
		// A real edit landed before the settle; treat it as a change.
	}
	if c.synced != nil && c.state.Equal(c.synced) {
		return SyncUnchanged
	}
	c.synced = c.state.Clone()

	query := urlparam.Encode(c.state)
	if query == c.lastObserved {
		// The address bar already shows this state.
		return SyncUnchanged
	}
	c.nav.Navigate(query, urlparam.ModeReplace)
	c.lastWritten, c.hasWritten = query, true
	c.lastObserved = query
	if c.hooks.OnWrite != nil {
		c.hooks.OnWrite(query)
	}
	return SyncWritten
}

// SyncArmed reports whether the next Sync will be checked against the
// hydration snapshot.
func (c *Controller) SyncArmed() bool { return c.skipNextSync }

// Value returns the current value of a field.
func (c *Controller) Value(name string) (form.Value, error) {
	if _, ok := c.schema.Field(name); !ok {
		return form.Value{}, fmt.Errorf("formsync: unknown field %q", name)
	}
	v := c.state[name]
	if v.Shape() == form.ShapeList {
		return form.List(v.Items()...), nil
	}
	return v, nil
}
