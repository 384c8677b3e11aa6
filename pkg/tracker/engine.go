// VN Tracker
// Copyright (c) 2025 The VN Tracker Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of VN Tracker.
//
// VN Tracker is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// VN Tracker is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VN Tracker.  If not, see <http://www.gnu.org/licenses/>.

package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/idle"
	"github.com/vnclub/vntracker/pkg/procwatch"
)

const (
	DefaultTickInterval = time.Second
	DefaultAfkThreshold = 60 * time.Second
	DefaultDailyGoal    = 90 * time.Minute
	DefaultFlushEvery   = 10

	// flushTimeout bounds a single store write, including the final one
	// made after the engine context has been cancelled.
	flushTimeout = 10 * time.Second
)

// ProcessChecker reports whether a target process is currently running.
type ProcessChecker interface {
	IsRunning(ctx context.Context, target procwatch.Target) (bool, error)
}

// Store is the durable record mapping. Upsert stages a whole batch
// atomically; Flush writes everything staged so far. A failed Flush must
// keep the staged data for the next attempt.
type Store interface {
	Load(ctx context.Context) (Records, error)
	Upsert(records Records)
	Flush(ctx context.Context) error
}

// Options configures an Engine. Zero values select the defaults, except
// AfkThreshold and DailyGoal where zero is meaningful; use NewOptions for
// the documented defaults.
type Options struct {
	Location     *time.Location
	TickInterval time.Duration
	AfkThreshold time.Duration
	DailyGoal    time.Duration
	FlushEvery   int
}

// NewOptions returns Options populated with the default settings.
func NewOptions() Options {
	return Options{
		TickInterval: DefaultTickInterval,
		AfkThreshold: DefaultAfkThreshold,
		DailyGoal:    DefaultDailyGoal,
		FlushEvery:   DefaultFlushEvery,
		Location:     time.Local,
	}
}

type command struct {
	fn    func(ctx context.Context) error
	reply chan error
	op    string
}

type flushRequest struct {
	// done is nil for a periodic flush; a synchronous flush waits on it.
	done chan error
}

// Engine is the tracking state machine. All mutable state is owned by the
// goroutine running Run; other goroutines interact through commands and
// read published snapshots.
type Engine struct {
	clock clockwork.Clock
	procs ProcessChecker
	idle  idle.Source
	store Store

	cmds      chan command
	flushReqs chan flushRequest
	done      chan struct{}
	snap      atomic.Pointer[Snapshot]
	subs      *broadcaster
	running   atomic.Bool

	// Fields below are owned by the Run goroutine.
	acc          *Accumulator
	dirty        map[Key]struct{}
	unreadResets map[Key]struct{}
	ticker       clockwork.Ticker
	loc          *time.Location
	lastTick     time.Time
	target       procwatch.Target
	title        string
	lastErr      string
	tickInterval time.Duration
	afkThreshold time.Duration
	goal         time.Duration
	flushEvery   int
	sinceFlush   int
	ticks        uint64
	engine       EngineState
	state        ActivityState
	loaded       bool
}

// NewEngine validates opts and creates a stopped engine. Run must be
// called for commands to be processed.
func NewEngine(
	clock clockwork.Clock,
	procs ProcessChecker,
	idleSource idle.Source,
	store Store,
	opts Options,
) (*Engine, error) {
	if opts.TickInterval == 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.TickInterval < 0 {
		return nil, configErr("new engine", ErrInvalidInterval)
	}
	if opts.AfkThreshold < 0 || opts.DailyGoal < 0 {
		return nil, configErr("new engine", ErrNegativeDuration)
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	e := &Engine{
		clock:        clock,
		procs:        procs,
		idle:         idleSource,
		store:        store,
		cmds:         make(chan command),
		flushReqs:    make(chan flushRequest, 1),
		done:         make(chan struct{}),
		subs:         newBroadcaster(),
		acc:          NewAccumulator(opts.TickInterval),
		dirty:        make(map[Key]struct{}),
		unreadResets: make(map[Key]struct{}),
		loc:          opts.Location,
		tickInterval: opts.TickInterval,
		afkThreshold: opts.AfkThreshold,
		goal:         opts.DailyGoal,
		flushEvery:   opts.FlushEvery,
	}
	e.publish()
	return e, nil
}

// Snapshot returns the most recently published state.
func (e *Engine) Snapshot() Snapshot {
	return *e.snap.Load()
}

// Subscribe returns a channel receiving every published snapshot and a
// function to cancel the subscription. Sends never block the engine; a
// subscriber that falls behind misses snapshots. The channel is closed on
// cancel or when the engine stops running.
func (e *Engine) Subscribe(buf int) (<-chan Snapshot, func()) {
	return e.subs.subscribe(buf)
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run processes ticks and commands until ctx is cancelled, then performs a
// final synchronous flush. It may only be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer close(e.done)
	defer e.subs.close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.flushLoop(context.WithoutCancel(ctx))
	}()

	log.Info().
		Dur("tick", e.tickInterval).
		Dur("afk", e.afkThreshold).
		Dur("goal", e.goal).
		Msg("tracker: engine started")

	for {
		select {
		case <-ctx.Done():
			e.shutdown(ctx)
			close(e.flushReqs)
			wg.Wait()
			log.Info().Msg("tracker: engine stopped")
			return nil
		case cmd := <-e.cmds:
			err := cmd.fn(ctx)
			if err != nil {
				log.Debug().Err(err).Str("op", cmd.op).Msg("tracker: command rejected")
			}
			e.publish()
			cmd.reply <- err
		case <-e.tickChan():
			e.tick(ctx)
		}
	}
}

// Start binds title and target and begins ticking. The session store is
// loaded on first use.
func (e *Engine) Start(ctx context.Context, title string, target procwatch.Target) error {
	const op = "start"
	title = NormalizeTitle(title)
	return e.exec(ctx, op, func(runCtx context.Context) error {
		if e.engine == EngineTracking {
			return configErr(op, ErrAlreadyTracking)
		}
		if err := validateBinding(op, title, target); err != nil {
			return err
		}
		e.ensureLoaded(runCtx)

		e.title = title
		e.target = target
		e.engine = EngineTracking
		e.state = StateInactive
		e.lastTick = e.clock.Now()
		e.sinceFlush = 0
		e.ticker = e.clock.NewTicker(e.tickInterval)
		trackingGauge.Set(1)

		log.Info().
			Str("title", title).
			Str("target", target.String()).
			Msg("tracker: tracking started")
		return nil
	})
}

// Stop halts the ticker and writes the store synchronously. No tick runs
// after the final flush. A flush failure is logged and retried on the next
// flush rather than returned.
func (e *Engine) Stop(ctx context.Context) error {
	const op = "stop"
	return e.exec(ctx, op, func(runCtx context.Context) error {
		if e.engine != EngineTracking {
			return configErr(op, ErrNotTracking)
		}
		e.stopTicker()

		title := e.title
		e.title = ""
		e.target = procwatch.Target{}
		e.engine = EngineStopped
		e.state = StateInactive
		trackingGauge.Set(0)

		if err := e.flushSync(runCtx); err != nil {
			log.Warn().Err(err).Msg("tracker: flush on stop failed, data kept for retry")
		}
		log.Info().Str("title", title).Msg("tracker: tracking stopped")
		return nil
	})
}

// ChangeTitle flushes the current title's time and rebinds to a new title
// and target without leaving the tracking state.
func (e *Engine) ChangeTitle(ctx context.Context, title string, target procwatch.Target) error {
	const op = "change title"
	title = NormalizeTitle(title)
	return e.exec(ctx, op, func(runCtx context.Context) error {
		if e.engine != EngineTracking {
			return configErr(op, ErrNotTracking)
		}
		if err := validateBinding(op, title, target); err != nil {
			return err
		}

		if err := e.flushSync(runCtx); err != nil {
			log.Warn().Err(err).Msg("tracker: flush on title change failed, data kept for retry")
		}

		prev := e.title
		e.title = title
		e.target = target
		e.state = StateInactive
		e.lastTick = e.clock.Now()

		log.Info().
			Str("from", prev).
			Str("to", title).
			Str("target", target.String()).
			Msg("tracker: title changed")
		return nil
	})
}

// ResetToday zeroes today's record for the bound title and writes the
// store before returning, so a crash cannot bring the old value back. A
// write failure is returned; the zeroed record stays staged for retry.
func (e *Engine) ResetToday(ctx context.Context) error {
	const op = "reset today"
	return e.exec(ctx, op, func(runCtx context.Context) error {
		if e.engine != EngineTracking {
			return configErr(op, ErrNotTracking)
		}
		day := e.today()
		key := Key{Title: e.title, Date: day}
		e.acc.ResetToday(e.title, day)
		e.markDirty(key)
		if !e.loaded {
			e.unreadResets[key] = struct{}{}
		}

		log.Info().Str("title", e.title).Str("date", day.String()).Msg("tracker: reset today")
		if err := e.flushSync(runCtx); err != nil {
			return fmt.Errorf("writing reset: %w", err)
		}
		return nil
	})
}

// SetGoal changes the daily goal. Zero disables the goal.
func (e *Engine) SetGoal(ctx context.Context, goal time.Duration) error {
	const op = "set goal"
	if goal < 0 {
		return configErr(op, ErrNegativeDuration)
	}
	return e.exec(ctx, op, func(context.Context) error {
		e.goal = goal
		log.Debug().Dur("goal", goal).Msg("tracker: goal updated")
		return nil
	})
}

// SetAfkThreshold changes the idle duration after which a running process
// counts as AFK. Zero makes every running tick AFK.
func (e *Engine) SetAfkThreshold(ctx context.Context, threshold time.Duration) error {
	const op = "set afk threshold"
	if threshold < 0 {
		return configErr(op, ErrNegativeDuration)
	}
	return e.exec(ctx, op, func(context.Context) error {
		e.afkThreshold = threshold
		log.Debug().Dur("afk", threshold).Msg("tracker: afk threshold updated")
		return nil
	})
}

// Stats returns a copy of every record, loading the store if needed.
func (e *Engine) Stats(ctx context.Context) (Records, error) {
	var out Records
	err := e.exec(ctx, "stats", func(runCtx context.Context) error {
		e.ensureLoaded(runCtx)
		out = e.acc.Records()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validateBinding(op, title string, target procwatch.Target) error {
	if title == "" {
		return configErr(op, ErrInvalidTitle)
	}
	if target.IsZero() {
		return configErr(op, ErrInvalidTarget)
	}
	return nil
}

func (e *Engine) exec(ctx context.Context, op string, fn func(context.Context) error) error {
	cmd := command{op: op, fn: fn, reply: make(chan error, 1)}
	select {
	case e.cmds <- cmd:
	case <-e.done:
		return configErr(op, ErrEngineClosed)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (e *Engine) tickChan() <-chan time.Time {
	if e.ticker == nil {
		return nil
	}
	return e.ticker.Chan()
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) today() Date {
	return DateOf(e.clock.Now().In(e.loc))
}

// ensureLoaded reads the session store once. A read that fails for any
// reason other than corruption leaves the store unread; time keeps
// accumulating in memory and the read is retried before the next write.
// It reports whether the store has been read.
func (e *Engine) ensureLoaded(ctx context.Context) bool {
	if e.loaded {
		return true
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	records, err := e.store.Load(lctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrStoreCorrupt):
		log.Warn().Err(err).Msg("tracker: session store not loaded cleanly, continuing with what was read")
	default:
		log.Warn().Err(err).Msg("tracker: session store could not be read, retrying before the next write")
		return false
	}

	e.loaded = true
	e.acc.Merge(records, e.unreadResets)
	clear(e.unreadResets)
	log.Debug().Int("records", len(records)).Msg("tracker: session store loaded")
	return true
}

// tick runs one sample, classify, accumulate and publish cycle. The fake
// and real tick channels both may coalesce ticks, so the wall clock is read
// here rather than taken from the channel.
func (e *Engine) tick(ctx context.Context) {
	now := e.clock.Now()
	sample := e.sample(ctx, now)
	state := sample.State(e.afkThreshold)

	elapsed := now.Round(0).Sub(e.lastTick.Round(0))
	e.lastTick = now
	if elapsed > GapFactor*e.tickInterval {
		log.Info().
			Dur("gap", elapsed).
			Msg("tracker: wall clock gap between ticks, crediting one interval")
	}

	day := DateOf(now.In(e.loc))
	credited := e.acc.OnTick(state, elapsed, e.title, day)
	if credited > 0 {
		e.markDirty(Key{Title: e.title, Date: day})
		activeSecondsTotal.Add(credited.Seconds())
	}

	if state != e.state {
		log.Debug().
			Str("from", e.state.String()).
			Str("to", state.String()).
			Msg("tracker: activity state changed")
	}
	e.state = state
	e.ticks++
	ticksTotal.WithLabelValues(state.String()).Inc()

	if sample.Err != nil {
		e.lastErr = sample.Err.Error()
	} else {
		e.lastErr = ""
	}

	if e.loaded {
		e.stage()
	}
	e.sinceFlush++
	if e.sinceFlush >= e.flushEvery {
		e.sinceFlush = 0
		if e.ensureLoaded(ctx) {
			e.stage()
			e.flushAsync()
		}
	}

	e.publish()
}

func (e *Engine) sample(ctx context.Context, now time.Time) Sample {
	s := Sample{Time: now}

	sctx, cancel := context.WithTimeout(ctx, e.tickInterval)
	defer cancel()

	running, err := e.procs.IsRunning(sctx, e.target)
	if err != nil {
		s.Err = &SampleError{Source: "process", Err: err}
		sampleErrorsTotal.WithLabelValues("process").Inc()
		log.Warn().Err(err).Str("target", e.target.String()).Msg("tracker: process sample failed")
		return s
	}
	s.ProcessRunning = running
	if !running {
		return s
	}

	idleFor, err := e.idle.IdleDuration(sctx)
	if err != nil {
		s.Err = &SampleError{Source: "idle", Err: err}
		sampleErrorsTotal.WithLabelValues("idle").Inc()
		log.Warn().Err(err).Msg("tracker: idle sample failed")
		return s
	}
	if idleFor < 0 {
		idleFor = 0
	}
	s.Idle = idleFor
	return s
}

func (e *Engine) markDirty(k Key) {
	e.dirty[k] = struct{}{}
}

// stage hands every record changed since the last call to the store as a
// single batch. The store must have been read.
func (e *Engine) stage() {
	if len(e.dirty) == 0 {
		return
	}
	batch := make(Records, len(e.dirty))
	for k := range e.dirty {
		d, _ := e.acc.Record(k)
		batch[k] = d
	}
	e.store.Upsert(batch)
	clear(e.dirty)
}

// flushAsync queues a periodic flush. If one is already queued it will
// pick up the newly staged records, so the request is dropped.
func (e *Engine) flushAsync() {
	select {
	case e.flushReqs <- flushRequest{}:
	default:
	}
}

// flushSync stages pending changes and waits for the flusher to write
// them. Requests share the flusher queue so writes are never reordered.
func (e *Engine) flushSync(ctx context.Context) error {
	if !e.ensureLoaded(ctx) {
		return ErrStoreUnread
	}
	e.stage()
	done := make(chan error, 1)
	e.flushReqs <- flushRequest{done: done}
	return <-done
}

func (e *Engine) flushLoop(ctx context.Context) {
	for req := range e.flushReqs {
		err := e.flushStore(ctx)
		if req.done != nil {
			req.done <- err
		}
	}
}

func (e *Engine) flushStore(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	start := time.Now()
	err := e.store.Flush(fctx)
	flushDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		flushesTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("tracker: session store flush failed")
		return err
	}
	flushesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (e *Engine) shutdown(ctx context.Context) {
	e.stopTicker()
	if e.engine == EngineTracking {
		trackingGauge.Set(0)
	}
	if !e.loaded && len(e.dirty) == 0 {
		return
	}
	if err := e.flushSync(ctx); err != nil {
		log.Error().Err(err).Msg("tracker: final flush failed")
	}
}

func (e *Engine) publish() {
	now := e.clock.Now()
	day := DateOf(now.In(e.loc))

	s := &Snapshot{
		UpdatedAt:       now,
		Date:            day,
		Title:           e.title,
		Target:          e.target,
		Engine:          e.engine,
		State:           e.state,
		AfkThreshold:    e.afkThreshold,
		TickInterval:    e.tickInterval,
		Ticks:           e.ticks,
		LastSampleError: e.lastErr,
	}
	if e.title != "" {
		s.ElapsedToday = e.acc.ElapsedToday(e.title, day)
		s.ElapsedWeek = e.acc.ElapsedWeek(e.title, day)
		s.ElapsedMonth = e.acc.ElapsedMonth(e.title, day)
		s.ElapsedTotal = e.acc.ElapsedTotal(e.title)
	}
	s.Goal = Progress(e.goal, s.ElapsedToday)

	e.snap.Store(s)
	e.subs.publish(*s)
}
