package cascade

import (
	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
	"github.com/go-gl/mathgl/mgl32"
)

// View is the per-frame input to the cascade manager.
type View struct {
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Distance  float32
	Quality   Quality
	// SceneBounds limits how far cascades are pushed along the view direction.
	// An empty box means unbounded.
	SceneBounds common.BoundingBox
}

type manager struct {
	scales      DistanceScales
	frequencies [MaxCascades]int
	idealExtent float32
	viewShift   float32

	layout      Layout
	cascades    []Cascade
	forceReset  bool
	initialized bool
}

// Manager owns the nested cascades around one viewer.
type Manager interface {
	// Update fits the layout to the view, marks cascades dirty by cadence and
	// recenters the dirty ones.
	//
	// Parameters:
	//   - view: the viewer and requested distance
	//   - frame: the frame counter
	//   - spreading: false updates every cascade every frame
	//
	// Returns:
	//   - bool: true if the layout changed or a reset was requested; callers
	//     must reallocate or clear every cascade
	Update(view View, frame uint64, spreading bool) bool

	// Cascades returns the current cascades. The slice is owned by the manager
	// and valid until the next Update.
	//
	// Returns:
	//   - []Cascade: the cascades, innermost first
	Cascades() []Cascade

	// Layout returns the current layout.
	//
	// Returns:
	//   - Layout: the cascade layout
	Layout() Layout

	// RequestReset forces a full reset on the next Update.
	RequestReset()

	// Frequencies returns the update period of every cascade slot.
	Frequencies() [MaxCascades]int
}

var _ Manager = &manager{}

// NewManager creates a cascade Manager using the distance field table.
//
// Parameters:
//   - opts: variadic ManagerBuilderOption functions
//
// Returns:
//   - Manager: the cascade manager
func NewManager(opts ...ManagerBuilderOption) Manager {
	m := &manager{
		scales:      SDFDistanceScales,
		frequencies: DefaultFrequencies,
		idealExtent: 2500,
		viewShift:   0.4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *manager) Update(view View, frame uint64, spreading bool) bool {
	layout := ComputeLayout(view.Distance, view.Quality, m.idealExtent, m.scales)
	reset := m.forceReset || !m.initialized || !layout.Equal(m.layout)
	m.forceReset = false
	if reset {
		m.layout = layout
		m.cascades = make([]Cascade, layout.CascadeCount)
		for i := range m.cascades {
			m.cascades[i] = NewCascade(i, view.Position, layout.Extents[i], layout.Resolution, m.frequencies[i])
		}
		m.initialized = true
		logger.Component("cascade").Info("cascade layout changed",
			"cascades", layout.CascadeCount, "resolution", layout.Resolution, "quality", view.Quality.String())
	}

	for i := range m.cascades {
		c := &m.cascades[i]
		c.Dirty = ShouldUpdate(frame, c.Frequency, reset, spreading)
		if c.Dirty {
			c.Position = Recenter(view.Position, view.Direction, c.Extent, c.ChunkSize, m.viewShift, view.SceneBounds)
		}
	}
	return reset
}

func (m *manager) Cascades() []Cascade {
	return m.cascades
}

func (m *manager) Layout() Layout {
	return m.layout
}

func (m *manager) RequestReset() {
	m.forceReset = true
}

func (m *manager) Frequencies() [MaxCascades]int {
	return m.frequencies
}
