package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hearth-home/hearth-core/internal/actor"
	"github.com/hearth-home/hearth-core/internal/expression"
	"github.com/hearth-home/hearth-core/internal/schedule"
)

// Sources a value change can originate from.
const (
	SourceSchedule    = "schedule"
	SourceManual      = "manual"
	SourceReplication = "replication"
)

// defaultRescheduleDebounce collapses bursts of reschedule requests
// into a single schedule application.
const defaultRescheduleDebounce = 6 * time.Second

// Override is a manual value request for a room. Exactly one of Value
// (with HasValue set) and Expression must be given.
type Override struct {
	// Value is the literal value to set.
	Value    any
	HasValue bool

	// Expression is evaluated against the room's environment. The
	// result is applied like a rule result: a plain value is set,
	// IncludeSchedule evaluates the referenced snippet, and anything
	// else sets nothing.
	Expression string

	// Trusted marks the request as coming from an operator-controlled
	// surface. Untrusted expressions are rejected unless the room
	// allows them.
	Trusted bool

	// RescheduleDelay overrides the room's configured delay for this
	// request only. Nil keeps the room default.
	RescheduleDelay *time.Duration

	// ForceResend sends the value even when an actor already reports
	// it.
	ForceResend bool
}

// Status is a room snapshot for the API and event payloads.
type Status struct {
	Name            string        `json:"name"`
	FriendlyName    string        `json:"friendly_name"`
	ScheduledValue  any           `json:"scheduled_value,omitempty"`
	WantedValue     any           `json:"wanted_value,omitempty"`
	OverrideActive  bool          `json:"override_active"`
	RescheduleAt    *time.Time    `json:"reschedule_at,omitempty"`
	Actors          []ActorStatus `json:"actors"`
	SchedulingTimes []string      `json:"scheduling_times,omitempty"`
}

// ActorStatus is one actor's slice of a room snapshot.
type ActorStatus struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	LastValue any    `json:"last_value,omitempty"`
}

// Room drives one room: it owns the schedule, the actors and the
// override timer, and decides when values flow out to the actors.
//
// Two values are tracked separately. The scheduled value is the last
// schedule outcome and backs the "result didn't change" suppression
// across runs and restarts. The wanted value is the last value
// actually commanded, scheduled or manual, and is what external
// changes are compared against.
type Room struct {
	name             string
	friendlyName     string
	rescheduleDelay  time.Duration
	replicateChanges bool
	schedule         *schedule.Schedule
	actors           []actor.Actor

	deps *deps

	mu              sync.Mutex
	scheduledValue  any
	hasScheduled    bool
	wantedValue     any
	hasWanted       bool
	lastReported    map[string]any
	rescheduleTimer *time.Timer
	rescheduleAt    time.Time
}

func newRoom(decl schedule.RoomDocument, deps *deps) (*Room, error) {
	r := &Room{
		name:             decl.Name,
		friendlyName:     decl.FriendlyName,
		rescheduleDelay:  decl.RescheduleDelay,
		replicateChanges: decl.ReplicateChanges,
		schedule:         decl.Schedule,
		deps:             deps,
		lastReported:     make(map[string]any),
	}
	for _, spec := range decl.Actors {
		a, err := actor.New(spec)
		if err != nil {
			return nil, fmt.Errorf("room %s: actor %s: %w", decl.Name, spec.ID, err)
		}
		r.actors = append(r.actors, a)
	}
	return r, nil
}

// Name returns the room's identifier.
func (r *Room) Name() string { return r.name }

// Actors returns the room's actors.
func (r *Room) Actors() []actor.Actor { return r.actors }

// Status returns a snapshot of the room.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		Name:           r.name,
		FriendlyName:   r.friendlyName,
		OverrideActive: r.rescheduleTimer != nil,
	}
	if r.hasScheduled {
		s.ScheduledValue = r.scheduledValue
	}
	if r.hasWanted {
		s.WantedValue = r.wantedValue
	}
	if r.rescheduleTimer != nil {
		at := r.rescheduleAt
		s.RescheduleAt = &at
	}
	for _, a := range r.actors {
		s.Actors = append(s.Actors, ActorStatus{
			ID:        a.ID(),
			Type:      a.Type(),
			LastValue: r.lastReported[a.ID()],
		})
	}
	for _, t := range r.schedule.SchedulingTimes(r.deps.evaluator.Snippets()) {
		s.SchedulingTimes = append(s.SchedulingTimes, t.String())
	}
	return s
}

// EvaluateAt computes the schedule outcome for an arbitrary instant
// without touching any state. Used for dry runs through the API.
func (r *Room) EvaluateAt(at time.Time) (schedule.Outcome, error) {
	return r.deps.evaluator.Evaluate(r.schedule, r.evalContext(at))
}

func (r *Room) evalContext(at time.Time) schedule.Context {
	return schedule.Context{
		RoomName: r.name,
		Now:      at.In(r.deps.tz),
		State:    r.deps.stateFunc(),
		Funcs:    r.deps.funcs,
	}
}

// ApplySchedule evaluates the schedule for the current time and sends
// the outcome to the actors.
//
// Nothing is applied while a re-schedule timer is running: the manual
// value holds until the timer expires. An unchanged outcome is not
// re-sent unless force is set. An evaluation error leaves the previous
// actuation untouched and is returned.
func (r *Room) ApplySchedule(ctx context.Context, force bool) error {
	return r.applySchedule(ctx, true, force)
}

// applySchedule is ApplySchedule with an additional send switch. With
// send unset only the records are updated, nothing is actuated. Used
// at startup when apply_at_startup is disabled.
func (r *Room) applySchedule(ctx context.Context, send, force bool) error {
	r.mu.Lock()
	if r.rescheduleTimer != nil {
		r.mu.Unlock()
		r.deps.logger.Debug("not scheduling now due to a running re-schedule timer", "room", r.name)
		return nil
	}
	r.mu.Unlock()

	now := r.deps.timeNow()
	out, err := r.deps.evaluator.Evaluate(r.schedule, r.evalContext(now))
	if err != nil {
		r.deps.logger.Error("schedule evaluation failed, keeping previous value",
			"room", r.name, "error", err)
		return err
	}
	if !out.HasValue {
		r.deps.logger.Debug("no suitable value found in schedule", "room", r.name)
		return nil
	}

	r.mu.Lock()
	if r.hasScheduled && expression.Equal(out.Value, r.scheduledValue) && !force {
		r.mu.Unlock()
		r.deps.logger.Debug("result didn't change, not setting it again",
			"room", r.name, "value", expression.FormatValue(out.Value))
		return nil
	}
	r.scheduledValue = out.Value
	r.hasScheduled = true
	r.mu.Unlock()

	r.persistScheduledValue(ctx, out.Value)

	if !send {
		r.deps.logger.Debug("not actually setting the value, records only",
			"room", r.name, "value", expression.FormatValue(out.Value))
		return nil
	}

	rule := ""
	if out.Rule != nil {
		rule = out.Rule.String()
	}
	r.setValue(ctx, out.Value, SourceSchedule, rule, force)
	return nil
}

// restoreScheduledValue seeds the suppression cache from a persisted
// record, so a restart does not re-send an unchanged value.
func (r *Room) restoreScheduledValue(rec StateRecord) {
	value, err := actor.DeserializeValue(rec.ScheduledValue)
	if err != nil {
		r.deps.logger.Warn("last scheduled value is unknown", "room", r.name, "error", err)
		return
	}
	r.mu.Lock()
	r.scheduledValue = value
	r.hasScheduled = true
	r.mu.Unlock()
	r.deps.logger.Debug("restored last scheduled value",
		"room", r.name, "value", expression.FormatValue(value))
}

func (r *Room) persistScheduledValue(ctx context.Context, value any) {
	if r.deps.repo == nil {
		return
	}
	serialized, err := actor.SerializeValue(value)
	if err != nil {
		r.deps.logger.Error("cannot store scheduling result", "room", r.name, "error", err)
		return
	}
	rec := StateRecord{Room: r.name, ScheduledValue: serialized, UpdatedAt: r.deps.timeNow().UTC()}
	if err := r.deps.repo.SaveState(ctx, rec); err != nil {
		r.deps.logger.Error("cannot store scheduling result", "room", r.name, "error", err)
	}
}

// SetValueManually applies an override: a literal value or an
// expression result. A re-schedule timer is started according to the
// room's settings, replacing any running one.
func (r *Room) SetValueManually(ctx context.Context, req Override) error {
	if req.HasValue == (req.Expression != "") {
		return ErrMissingValue
	}

	delay := r.rescheduleDelay
	if req.RescheduleDelay != nil {
		if *req.RescheduleDelay < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidDelay, *req.RescheduleDelay)
		}
		delay = *req.RescheduleDelay
	}

	value := req.Value
	if req.Expression != "" {
		resolved, err := r.resolveOverrideExpression(req.Expression, req.Trusted)
		if err != nil {
			return err
		}
		value = resolved
	}
	if !r.supportedByAnyActor(value) {
		return fmt.Errorf("%w: %s is not supported by any actor of room %s",
			actor.ErrUnsupportedValue, expression.FormatValue(value), r.name)
	}

	r.setValue(ctx, value, SourceManual, "", req.ForceResend)
	r.startRescheduleTimer(delay, true)

	if r.deps.audit != nil {
		r.deps.audit.Record(ctx, "room.override_set", r.name, map[string]any{
			"value":            expression.FormatValue(value),
			"reschedule_delay": delay.String(),
			"expression":       req.Expression,
		})
	}
	return nil
}

func (r *Room) supportedByAnyActor(value any) bool {
	for _, a := range r.actors {
		if _, ok := a.FilterValue(value); ok {
			return true
		}
	}
	return false
}

// Reschedule asks the room to fall back to its schedule. The apply is
// debounced so bursts of reschedule requests collapse into one
// evaluation. A running re-schedule timer is only replaced when
// cancelRunning is set, otherwise the request is a no-op and the
// manual value keeps holding.
func (r *Room) Reschedule(ctx context.Context, cancelRunning bool) {
	if r.startRescheduleTimer(r.deps.rescheduleDebounce, cancelRunning) {
		if r.deps.audit != nil {
			r.deps.audit.Record(ctx, "room.rescheduled", r.name, map[string]any{
				"cancel_running_timer": cancelRunning,
			})
		}
	}
}

// resolveOverrideExpression evaluates an override expression down to a
// concrete value.
func (r *Room) resolveOverrideExpression(src string, trusted bool) (any, error) {
	if !trusted && !r.schedule.UntrustedExpressionsAllowed {
		return nil, &expression.PermissionError{Room: r.name}
	}

	prog, err := expression.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compiling override expression: %w", err)
	}
	if err := r.deps.evaluator.Snippets().CheckProgram(prog); err != nil {
		return nil, err
	}

	now := r.deps.timeNow()
	env := &expression.Env{
		RoomName: r.name,
		Now:      now,
		State:    r.deps.stateFunc(),
		Funcs:    r.deps.funcs,
	}
	res, err := expression.Evaluate(prog, env)
	if err != nil {
		return nil, err
	}
	r.deps.logger.Debug("evaluated override expression",
		"room", r.name, "expression", src, "result", res.String())

	switch v := res.(type) {
	case expression.Value:
		return v.Val, nil
	case expression.IncludeSchedule:
		frag, ok := r.deps.evaluator.Snippets().Get(v.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", schedule.ErrUnknownSnippet, v.Name)
		}
		out, err := r.deps.evaluator.Evaluate(frag, r.evalContext(now))
		if err != nil {
			return nil, err
		}
		if !out.HasValue {
			return nil, fmt.Errorf("%w: snippet %q produced no value", ErrNoValue, v.Name)
		}
		return out.Value, nil
	default:
		return nil, fmt.Errorf("%w: expression result %s", ErrNoValue, res.String())
	}
}

// setValue sends a value to all actors and records the change. Values
// an actor already reports are not re-sent unless force is set.
func (r *Room) setValue(ctx context.Context, value any, source, rule string, force bool) {
	r.deps.logger.Debug("setting value",
		"room", r.name, "value", expression.FormatValue(value), "source", source)

	r.mu.Lock()
	r.wantedValue = value
	r.hasWanted = true
	r.mu.Unlock()

	changed := false
	for _, a := range r.actors {
		v, ok := a.FilterValue(value)
		if !ok {
			r.deps.logger.Warn("actor does not support value, not sending",
				"room", r.name, "actor", a.ID(), "value", expression.FormatValue(value))
			continue
		}

		r.mu.Lock()
		last, seen := r.lastReported[a.ID()]
		r.mu.Unlock()
		if seen && expression.Equal(v, last) && !force {
			continue
		}

		cmd, err := a.Command(v)
		if err != nil {
			r.deps.logger.Error("building actor command failed",
				"room", r.name, "actor", a.ID(), "error", err)
			continue
		}
		if r.deps.commands != nil {
			if err := r.deps.commands.PublishCommand(a.ID(), cmd.Service, cmd.Data); err != nil {
				r.deps.logger.Error("publishing actor command failed",
					"room", r.name, "actor", a.ID(), "error", err)
				continue
			}
		}

		// Record the sent value so the confirmation report is not
		// mistaken for an external change.
		r.mu.Lock()
		r.lastReported[a.ID()] = v
		r.mu.Unlock()
		changed = true
	}

	if !changed {
		return
	}
	r.deps.logger.Info("value set",
		"room", r.name, "value", expression.FormatValue(value), "source", source, "rule", rule)

	if r.deps.commands != nil {
		if err := r.deps.commands.PublishRoomValue(r.name, value, source == SourceSchedule); err != nil {
			r.deps.logger.Error("publishing room value failed", "room", r.name, "error", err)
		}
	}
	if r.deps.events != nil {
		r.deps.events.Broadcast(EventValueChanged, map[string]any{
			"room":   r.name,
			"value":  value,
			"source": source,
			"rule":   rule,
		})
	}
	if r.deps.history != nil {
		r.deps.history.WriteRoomValue(r.name, value, source, rule, r.deps.timeNow())
	}
	if r.deps.audit != nil && source == SourceSchedule {
		r.deps.audit.Record(ctx, "room.schedule_applied", r.name, map[string]any{
			"value": expression.FormatValue(value),
			"rule":  rule,
		})
	}
}

// NotifyStateChanged feeds an entity state report into the room. The
// first report per actor only records a baseline. A report matching
// the last known value is an echo of our own command and is ignored.
// A genuine external change is replicated to the room's other actors
// when configured, and either cancels the re-schedule timer (the actor
// is back at the wanted value) or starts one.
func (r *Room) NotifyStateChanged(ctx context.Context, entityID string, attrs map[string]any) {
	var target actor.Actor
	for _, a := range r.actors {
		if a.ID() == entityID {
			target = a
			break
		}
	}
	if target == nil {
		return
	}
	value, ok := target.StateValue(attrs)
	if !ok {
		return
	}

	r.mu.Lock()
	last, seen := r.lastReported[entityID]
	r.lastReported[entityID] = value
	prevWanted, hasWanted := r.wantedValue, r.hasWanted
	r.mu.Unlock()

	if !seen {
		r.deps.logger.Debug("initial actor state",
			"room", r.name, "actor", entityID, "value", expression.FormatValue(value))
		return
	}
	if expression.Equal(value, last) {
		return
	}

	backInLine := hasWanted && expression.Equal(value, prevWanted)
	r.deps.logger.Info("actor value changed externally",
		"room", r.name, "actor", entityID, "value", expression.FormatValue(value))

	if r.replicateChanges && len(r.actors) > 1 && !backInLine {
		r.deps.logger.Info("propagating the change to all actors in the room", "room", r.name)
		r.setValue(ctx, value, SourceReplication, "", false)
	}

	if backInLine {
		r.cancelRescheduleTimer()
	} else if r.rescheduleDelay > 0 {
		r.startRescheduleTimer(r.rescheduleDelay, true)
	}
}

// startRescheduleTimer arms the timer that re-applies the schedule
// after a manual change. A running timer is kept unless restart is
// set. Returns whether a timer was started.
func (r *Room) startRescheduleTimer(delay time.Duration, restart bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rescheduleTimer != nil {
		if !restart {
			r.deps.logger.Debug("re-schedule timer running already, not starting another", "room", r.name)
			return false
		}
		r.rescheduleTimer.Stop()
		r.rescheduleTimer = nil
	}
	if delay <= 0 {
		return false
	}

	r.rescheduleAt = r.deps.timeNow().Add(delay)
	r.rescheduleTimer = time.AfterFunc(delay, r.rescheduleExpired)
	r.deps.logger.Info("re-scheduling not before",
		"room", r.name, "at", r.rescheduleAt.Format(time.RFC3339), "delay", delay.String())
	return true
}

// cancelRescheduleTimer stops a running re-schedule timer. Returns
// whether one was cancelled.
func (r *Room) cancelRescheduleTimer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rescheduleTimer == nil {
		return false
	}
	r.rescheduleTimer.Stop()
	r.rescheduleTimer = nil
	r.rescheduleAt = time.Time{}
	r.deps.logger.Debug("re-schedule timer cancelled", "room", r.name)
	return true
}

// rescheduleExpired runs when the re-schedule timer fires. The
// suppression cache is invalidated first so the scheduled value is
// re-sent even when it equals the pre-override one.
func (r *Room) rescheduleExpired() {
	r.mu.Lock()
	r.rescheduleTimer = nil
	r.rescheduleAt = time.Time{}
	r.scheduledValue = nil
	r.hasScheduled = false
	r.mu.Unlock()

	r.deps.logger.Debug("re-schedule timer fired", "room", r.name)
	if err := r.ApplySchedule(r.deps.baseContext(), false); err != nil {
		r.deps.logger.Error("re-scheduling after override failed", "room", r.name, "error", err)
	}
}

// runTimers re-applies the schedule at each time of day where a rule's
// applicability can flip. It returns when ctx is cancelled.
func (r *Room) runTimers(ctx context.Context) {
	times := r.schedule.SchedulingTimes(r.deps.evaluator.Snippets())
	if len(times) == 0 {
		r.deps.logger.Debug("no scheduling times, timers not started", "room", r.name)
		return
	}
	display := make([]string, len(times))
	for i, t := range times {
		display[i] = t.String()
	}
	r.deps.logger.Debug("registering scheduling timers", "room", r.name, "times", display)

	for {
		now := r.deps.timeNow()
		next := nextBoundary(now, times)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.deps.logger.Debug("schedule timer fired", "room", r.name)
			if err := r.ApplySchedule(ctx, false); err != nil {
				r.deps.logger.Error("scheduled re-application failed", "room", r.name, "error", err)
			}
		}
	}
}

// nextBoundary returns the next occurrence of any of the given times
// of day strictly after now.
func nextBoundary(now time.Time, times []schedule.TimeOfDay) time.Time {
	for _, tod := range times {
		candidate := time.Date(now.Year(), now.Month(), now.Day(),
			tod.Hour, tod.Minute, tod.Second, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	first := times[0]
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(),
		first.Hour, first.Minute, first.Second, 0, now.Location())
}
