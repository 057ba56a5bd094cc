package room

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hearth-home/hearth-core/internal/entity"
	"github.com/hearth-home/hearth-core/internal/expression"
	"github.com/hearth-home/hearth-core/internal/schedule"
)

// Logger is the minimal logging interface the room engine needs.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommandPublisher carries actor commands and room value announcements
// out to the broker. Implementations must be safe for concurrent use.
type CommandPublisher interface {
	PublishCommand(entityID, service string, data map[string]any) error
	PublishRoomValue(room string, value any, scheduled bool) error
}

// EventSink pushes engine events to connected clients.
type EventSink interface {
	Broadcast(event string, payload any)
}

// EventValueChanged is the event broadcast whenever a room's value
// changes, scheduled or manual.
const EventValueChanged = "room.value_changed"

// HistoryWriter records room value changes for later analysis.
type HistoryWriter interface {
	WriteRoomValue(room string, value any, source, rule string, at time.Time)
}

// AuditSink records notable engine actions.
type AuditSink interface {
	Record(ctx context.Context, action, room string, details map[string]any)
}

// deps bundles everything rooms share. Optional collaborators are nil
// when unused and guarded at each call site.
type deps struct {
	evaluator          *schedule.Evaluator
	entities           *entity.Registry
	repo               Repository
	commands           CommandPublisher
	events             EventSink
	history            HistoryWriter
	audit              AuditSink
	logger             Logger
	tz                 *time.Location
	funcs              map[string]expression.Func
	now                func() time.Time
	rescheduleDebounce time.Duration

	mu  sync.Mutex
	ctx context.Context
}

func (d *deps) timeNow() time.Time {
	if d.now != nil {
		return d.now().In(d.tz)
	}
	return time.Now().In(d.tz)
}

func (d *deps) stateFunc() expression.StateFunc {
	if d.entities == nil {
		return nil
	}
	return d.entities.Lookup
}

// baseContext is the context timer callbacks run under. It follows the
// manager's lifecycle once Start has been called.
func (d *deps) baseContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		return d.ctx
	}
	return context.Background()
}

func (d *deps) setBaseContext(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()
}

// Config wires a Manager. Document and Entities are required, the rest
// is optional.
type Config struct {
	Document *schedule.Document
	Entities *entity.Registry

	Repo     Repository
	Commands CommandPublisher
	Events   EventSink
	History  HistoryWriter
	Audit    AuditSink
	Logger   Logger

	// Funcs extends the expression environment with custom functions.
	Funcs map[string]expression.Func

	// Now overrides the time source, for tests.
	Now func() time.Time

	// StartupRecordsOnly makes the initial apply update the records
	// without actuating anything, mirroring apply_at_startup: false.
	StartupRecordsOnly bool

	// RescheduleDebounce overrides the delay reschedule requests are
	// collapsed over. Zero means the default of six seconds.
	RescheduleDebounce time.Duration
}

// Manager owns all rooms built from a schedule document and fans
// entity state reports out to them.
type Manager struct {
	deps               *deps
	rooms              map[string]*Room
	order              []string
	byActor            map[string][]*Room
	startupRecordsOnly bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds rooms and actors from the document and registers
// for entity state updates. Call Start to restore persisted state and
// arm the scheduling timers.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Document == nil {
		return nil, fmt.Errorf("room: document is required")
	}
	if cfg.Entities == nil {
		return nil, fmt.Errorf("room: entity registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	tz := cfg.Document.Timezone
	if tz == nil {
		tz = time.Local
	}

	evaluator := schedule.NewEvaluator(cfg.Document.Snippets)
	evaluator.SetLogger(logger)

	debounce := cfg.RescheduleDebounce
	if debounce <= 0 {
		debounce = defaultRescheduleDebounce
	}
	d := &deps{
		evaluator:          evaluator,
		entities:           cfg.Entities,
		repo:               cfg.Repo,
		commands:           cfg.Commands,
		events:             cfg.Events,
		history:            cfg.History,
		audit:              cfg.Audit,
		logger:             logger,
		tz:                 tz,
		funcs:              cfg.Funcs,
		now:                cfg.Now,
		rescheduleDebounce: debounce,
	}

	m := &Manager{
		deps:               d,
		rooms:              make(map[string]*Room),
		byActor:            make(map[string][]*Room),
		startupRecordsOnly: cfg.StartupRecordsOnly,
	}
	for _, decl := range cfg.Document.Rooms {
		r, err := newRoom(decl, d)
		if err != nil {
			return nil, err
		}
		m.rooms[r.name] = r
		m.order = append(m.order, r.name)
		for _, a := range r.actors {
			m.byActor[a.ID()] = append(m.byActor[a.ID()], r)
		}
	}
	sort.Strings(m.order)

	cfg.Entities.Watch(m.handleEntityState)
	return m, nil
}

// SetEventSink sets the sink room events are broadcast to, for
// collaborators built after the manager. Call before Start; later
// calls race with the scheduling goroutines.
func (m *Manager) SetEventSink(sink EventSink) {
	m.deps.events = sink
}

// Start restores persisted scheduled values, applies all schedules
// once and arms the per-room scheduling timers. The rooms stop
// re-applying when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	m.deps.setBaseContext(ctx)

	if m.deps.repo != nil {
		records, err := m.deps.repo.LoadStates(ctx)
		if err != nil {
			cancel()
			return fmt.Errorf("restoring room states: %w", err)
		}
		for name, rec := range records {
			if r, ok := m.rooms[name]; ok {
				r.restoreScheduledValue(rec)
			}
		}
	}

	for _, name := range m.order {
		if err := m.rooms[name].applySchedule(ctx, !m.startupRecordsOnly, false); err != nil {
			m.deps.logger.Error("initial schedule apply failed", "room", name, "error", err)
		}
	}

	for _, name := range m.order {
		r := m.rooms[name]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			r.runTimers(ctx)
		}()
	}
	m.deps.logger.Info("room engine started", "rooms", len(m.rooms))
	return nil
}

// Stop cancels the scheduling timers and waits for them to exit.
// Running re-schedule timers are cancelled as well.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	for _, r := range m.rooms {
		r.cancelRescheduleTimer()
	}
	m.deps.logger.Info("room engine stopped")
}

// Room returns the named room.
func (m *Manager) Room(name string) (*Room, error) {
	r, ok := m.rooms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, name)
	}
	return r, nil
}

// Rooms returns snapshots of all rooms, sorted by name.
func (m *Manager) Rooms() []Status {
	out := make([]Status, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.rooms[name].Status())
	}
	return out
}

// RoomStatus returns one room's snapshot.
func (m *Manager) RoomStatus(name string) (Status, error) {
	r, err := m.Room(name)
	if err != nil {
		return Status{}, err
	}
	return r.Status(), nil
}

// EvaluateRoomAt evaluates a room's schedule at the given time without
// touching any actor or record.
func (m *Manager) EvaluateRoomAt(name string, at time.Time) (schedule.Outcome, error) {
	r, err := m.Room(name)
	if err != nil {
		return schedule.Outcome{}, err
	}
	return r.EvaluateAt(at)
}

// ApplyAll applies every room's schedule. Errors are logged per room,
// one room's failure does not block the others.
func (m *Manager) ApplyAll(ctx context.Context, force bool) {
	for _, name := range m.order {
		if err := m.rooms[name].ApplySchedule(ctx, force); err != nil {
			m.deps.logger.Error("applying schedule failed", "room", name, "error", err)
		}
	}
}

// ApplyRoom applies one room's schedule.
func (m *Manager) ApplyRoom(ctx context.Context, name string, force bool) error {
	r, err := m.Room(name)
	if err != nil {
		return err
	}
	return r.ApplySchedule(ctx, force)
}

// SetValueManually applies an override to the named room.
func (m *Manager) SetValueManually(ctx context.Context, name string, req Override) error {
	r, err := m.Room(name)
	if err != nil {
		return err
	}
	return r.SetValueManually(ctx, req)
}

// Reschedule asks the named room to fall back to its schedule after
// the debounce delay. A running re-schedule timer is only replaced
// when cancelRunning is set.
func (m *Manager) Reschedule(ctx context.Context, name string, cancelRunning bool) error {
	r, err := m.Room(name)
	if err != nil {
		return err
	}
	r.Reschedule(ctx, cancelRunning)
	return nil
}

// RescheduleAll issues a reschedule request to every room.
func (m *Manager) RescheduleAll(ctx context.Context, cancelRunning bool) {
	m.deps.logger.Info("re-schedule requested for all rooms", "cancel_running_timer", cancelRunning)
	for _, name := range m.order {
		m.rooms[name].Reschedule(ctx, cancelRunning)
	}
}

// HandleStateReport feeds an entity state update into the registry,
// which fans it out to the rooms using that entity.
func (m *Manager) HandleStateReport(entityID string, attrs map[string]any) {
	m.deps.entities.Update(entityID, attrs)
}

func (m *Manager) handleEntityState(s entity.State) {
	ctx := m.deps.baseContext()
	for _, r := range m.byActor[s.EntityID] {
		r.NotifyStateChanged(ctx, s.EntityID, s.Attrs)
	}
}
