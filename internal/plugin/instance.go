package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/brickhost/internal/events"
	"github.com/mattjoyce/brickhost/internal/hostfunc"
	"github.com/mattjoyce/brickhost/internal/log"
	"github.com/mattjoyce/brickhost/internal/metrics"
	"github.com/mattjoyce/brickhost/internal/rpc"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultKillGrace = time.Second
)

// Sentinel errors for programmatic error checking.
var (
	ErrAlreadyLoaded = errors.New("plugin already loaded")
	ErrNotLoaded     = errors.New("plugin not loaded")
	ErrUnresponsive  = errors.New("plugin unresponsive")
	ErrExited        = errors.New("plugin exited during load")
)

// State is the supervisor's lifecycle state.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateLoaded    State = "loaded"
	StateUnloading State = "unloading"
	StateKilled    State = "killed"
)

// Status is the snapshot published on every terminal transition.
type Status struct {
	Name     string   `json:"name"`
	State    State    `json:"state"`
	Loaded   bool     `json:"loaded"`
	PID      int      `json:"pid,omitempty"`
	ExitCode *int     `json:"exit_code,omitempty"`
	Commands []string `json:"commands"`
	Cycle    string   `json:"cycle,omitempty"`
}

// StatusEvent is the bus event type carrying a Status.
const StatusEvent = "plugin.status"

// Store is the plugin's persistent storage: the key-value methods exposed
// to the plugin plus its merged config.
type Store interface {
	hostfunc.Store
	GetConfig(ctx context.Context) (map[string]any, error)
}

// Bus is the host-wide event source.
type Bus interface {
	SubscribeLossless() (<-chan events.Event, func())
}

// Options tune one Instance. Zero values take the defaults.
type Options struct {
	// Timeout guards both the init and the stop handshake.
	Timeout time.Duration
	// KillGrace is how long an interrupted process gets before SIGKILL.
	KillGrace time.Duration
	// OnStatus receives every terminal transition.
	OnStatus func(Status)
	// InitialState yields the synthetic events sent before live events.
	InitialState func(ctx context.Context) []events.Event
	Logger       *slog.Logger
}

// session is everything that lives for one load cycle.
type session struct {
	id     string
	child  *child
	bridge *rpc.Bridge
	detach []func() // control stream and exit listeners
	logOff func()   // diagnostic stream listener, removed once the process is gone
	pass   *passthrough

	killing  bool          // guarded by Instance.mu
	stopping bool          // stop was sent; an exit now is expected. Guarded by Instance.mu
	loaded   bool          // guarded by Instance.mu
	killed   chan struct{} // closed when the kill sequence finished
}

// Instance supervises one plugin across any number of load cycles.
type Instance struct {
	def     *Definition
	store   Store
	bus     Bus
	console hostfunc.Console
	opts    Options
	logger  *slog.Logger

	// opMu serializes Load and Unload. Kill never takes it.
	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	cur      *session
	commands []string
	lastExit *int
}

// NewInstance builds the supervisor for def. Nothing is started.
func NewInstance(def *Definition, store Store, bus Bus, console hostfunc.Console, opts Options) *Instance {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithPlugin(def.Name)
	}
	return &Instance{
		def:     def,
		store:   store,
		bus:     bus,
		console: console,
		opts:    opts,
		logger:  logger,
		state:   StateUnloaded,
	}
}

func (i *Instance) Name() string { return i.def.Name }

func (i *Instance) Definition() *Definition { return i.def }

// Load starts the plugin and runs the init handshake.
func (i *Instance) Load(ctx context.Context) bool {
	return i.TryLoad(ctx) == nil
}

// TryLoad is Load with the failure reason.
func (i *Instance) TryLoad(ctx context.Context) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.Lock()
	if i.cur != nil {
		i.mu.Unlock()
		i.logger.Warn("load ignored, plugin already has a process")
		metrics.RecordLoad(i.def.Name, metrics.OutcomeAlreadyLoaded)
		return ErrAlreadyLoaded
	}
	i.state = StateLoading
	i.commands = nil
	i.mu.Unlock()

	s, err := i.start(ctx)
	if err != nil {
		i.logger.Error("failed to load plugin", "error", err)
		i.mu.Lock()
		i.state = StateUnloaded
		i.mu.Unlock()
		i.emitStatus()
		metrics.RecordLoad(i.def.Name, metrics.OutcomeError)
		return err
	}

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- i.handshake(hctx, s) }()

	timer := time.NewTimer(i.opts.Timeout)
	defer timer.Stop()

	var outcome string
	joined := false
	select {
	case err = <-done:
		joined = true
		if err == nil {
			i.mu.Lock()
			if i.cur == s && !s.killing {
				i.state = StateLoaded
				s.loaded = true
			} else {
				err = ErrExited
			}
			i.mu.Unlock()
		}
		switch {
		case err == nil:
			outcome = metrics.OutcomeOK
		case errors.Is(err, ErrExited):
			outcome = metrics.OutcomeExited
		default:
			outcome = metrics.OutcomeError
			i.logger.Error("plugin init failed", "error", err)
		}
	case <-timer.C:
		err = ErrUnresponsive
		outcome = metrics.OutcomeTimeout
		i.logger.Warn("plugin unresponsive during load", "timeout", i.opts.Timeout)
	case <-s.child.exited:
		err = ErrExited
		outcome = metrics.OutcomeExited
		i.logger.Error("plugin exited during load", "exit_code", s.child.code())
	case <-ctx.Done():
		err = ctx.Err()
		outcome = metrics.OutcomeError
		i.logger.Warn("plugin load cancelled", "error", err)
	}

	if err != nil {
		cancel()
		i.killSession(s)
		// The kill rejected the pending init and the cancel unblocks store
		// or initial-state reads, so the work path returns.
		if !joined {
			<-done
		}
		metrics.RecordLoad(i.def.Name, outcome)
		return err
	}

	metrics.RecordLoad(i.def.Name, outcome)
	metrics.PluginsLoaded.Inc()
	i.logger.Info("plugin loaded", "pid", s.child.pid, "commands", i.Commands(), "cycle", s.id)
	i.emitStatus()
	return nil
}

// start spawns the process, creates the bridge and attaches listeners.
func (i *Instance) start(ctx context.Context) (*session, error) {
	c, err := spawn(i.def.Entrypoint, i.def.Dir, i.logger)
	if err != nil {
		return nil, err
	}

	s := &session{
		id:     uuid.NewString(),
		child:  c,
		killed: make(chan struct{}),
	}
	s.bridge = rpc.NewBridge(c.stdin, i.logger)
	hostfunc.Register(s.bridge, i.logger, i.store, i.console)

	i.mu.Lock()
	i.cur = s
	i.mu.Unlock()

	i.attach(s)
	c.startReaders()
	return s, nil
}

// handshake is the work path of Load.
func (i *Instance) handshake(ctx context.Context, s *session) error {
	cfg, err := i.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if i.opts.InitialState != nil {
		for _, ev := range i.opts.InitialState(ctx) {
			s.bridge.Notify(ev.Type, ev.Args)
		}
	}

	if err := i.startPassthrough(s); err != nil {
		return err
	}

	started := time.Now()
	raw, err := s.bridge.Emit(ctx, "init", cfg)
	switch {
	case errors.Is(err, rpc.ErrMethodNotFound):
		metrics.RecordRPC(i.def.Name, "init", metrics.OutcomeMethodNotFound, time.Since(started))
		i.logger.Debug("plugin has no init handler; add one to register commands")
		return nil
	case errors.Is(err, rpc.ErrClosed), errors.Is(err, syscall.EPIPE), errors.Is(err, os.ErrClosed):
		return ErrExited
	case err != nil:
		metrics.RecordRPC(i.def.Name, "init", metrics.OutcomeError, time.Since(started))
		return fmt.Errorf("init: %w", err)
	}
	metrics.RecordRPC(i.def.Name, "init", metrics.OutcomeOK, time.Since(started))

	if cmds, ok := registeredCommands(raw); ok {
		i.mu.Lock()
		if i.cur == s {
			i.commands = cmds
		}
		i.mu.Unlock()
	}
	return nil
}

// registeredCommands extracts init's registeredCommands when it is a string
// array. Any other reply shape is accepted and ignored.
func registeredCommands(raw json.RawMessage) ([]string, bool) {
	var reply struct {
		RegisteredCommands json.RawMessage `json:"registeredCommands"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil || len(reply.RegisteredCommands) == 0 {
		return nil, false
	}
	var cmds []string
	if err := json.Unmarshal(reply.RegisteredCommands, &cmds); err != nil || cmds == nil {
		return nil, false
	}
	return cmds, true
}

// Unload asks the plugin to stop and then kills it. It always ends unloaded.
func (i *Instance) Unload(ctx context.Context) bool {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.Lock()
	s := i.cur
	if s == nil || s.child.hasExited() {
		i.mu.Unlock()
		if s == nil || !i.killSession(s) {
			i.emitStatus()
		}
		metrics.RecordUnload(i.def.Name, metrics.OutcomeNotLoaded)
		return true
	}
	i.state = StateUnloading
	s.stopping = true
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		started := time.Now()
		_, err := s.bridge.Emit(ctx, "stop", nil)
		switch {
		case err == nil:
			metrics.RecordRPC(i.def.Name, "stop", metrics.OutcomeOK, time.Since(started))
		case errors.Is(err, rpc.ErrMethodNotFound):
			metrics.RecordRPC(i.def.Name, "stop", metrics.OutcomeMethodNotFound, time.Since(started))
			i.logger.Debug("plugin has no stop handler")
		case errors.Is(err, rpc.ErrClosed):
		default:
			i.logger.Debug("plugin stop failed", "error", err)
		}
	}()

	timer := time.NewTimer(i.opts.Timeout)
	defer timer.Stop()

	outcome := metrics.OutcomeOK
	select {
	case <-done:
	case <-s.child.exited:
	case <-timer.C:
		outcome = metrics.OutcomeTimeout
		i.logger.Warn("plugin unresponsive during unload, killing", "timeout", i.opts.Timeout)
	case <-ctx.Done():
		outcome = metrics.OutcomeError
	}

	i.killSession(s)
	<-done
	metrics.RecordUnload(i.def.Name, outcome)
	i.logger.Info("plugin unloaded", "cycle", s.id)
	return true
}

// Kill runs the kill sequence on the current process, if any. Safe to call
// concurrently and repeatedly.
func (i *Instance) Kill() {
	i.mu.Lock()
	s := i.cur
	i.mu.Unlock()
	if s == nil {
		return
	}
	i.killSession(s)
}

// killSession tears down s. Returns true for the caller that ran the
// sequence; concurrent callers wait for it and get false.
func (i *Instance) killSession(s *session) bool {
	i.mu.Lock()
	if s.killing {
		i.mu.Unlock()
		<-s.killed
		return false
	}
	s.killing = true
	wasLoaded := s.loaded
	s.loaded = false
	if i.cur == s {
		i.state = StateKilled
	}
	pass := s.pass
	s.pass = nil
	detach := s.detach
	s.detach = nil
	logOff := s.logOff
	s.logOff = nil
	i.mu.Unlock()

	c := s.child
	s.bridge.Close(rpc.ErrClosed)
	for _, remove := range detach {
		remove()
	}
	// Unblocks any write stuck on a full pipe, so the forwarder can stop.
	_ = c.stdin.Close()
	if pass != nil {
		pass.stop()
	}

	if !c.hasExited() {
		if err := c.interrupt(); err != nil {
			i.logger.Debug("interrupt failed", "pid", c.pid, "error", err)
		} else {
			metrics.RecordSignal(i.def.Name, metrics.SignalInterrupt)
		}

		grace := time.NewTimer(i.opts.KillGrace)
		select {
		case <-c.exited:
		case <-grace.C:
			i.logger.Warn("plugin ignored interrupt, sending SIGKILL", "pid", c.pid, "grace", i.opts.KillGrace)
			if err := c.forceKill(); err != nil {
				i.logger.Error("kill failed", "pid", c.pid, "error", err)
			}
			metrics.RecordSignal(i.def.Name, metrics.SignalKill)
		}
		grace.Stop()
	}
	c.release(i.opts.KillGrace)
	if logOff != nil {
		logOff()
	}

	code := c.code()
	i.mu.Lock()
	if i.cur == s {
		i.cur = nil
		i.state = StateUnloaded
		i.commands = nil
		i.lastExit = &code
	}
	i.mu.Unlock()
	if wasLoaded {
		metrics.PluginsLoaded.Dec()
	}

	close(s.killed)
	i.emitStatus()
	return true
}

// attach wires the session's listeners; detach undoes exactly these.
func (i *Instance) attach(s *session) {
	c := s.child
	removers := []func(){
		c.stdout.On(s.bridge.Dispatch),
		c.onExit(func(code int) { i.handleExit(s, code) }),
	}
	logOff := c.stderr.On(func(line []byte) {
		i.logger.Info(string(line), "stream", "stderr")
	})

	i.mu.Lock()
	s.detach = removers
	s.logOff = logOff
	i.mu.Unlock()
}

func (i *Instance) handleExit(s *session, code int) {
	i.mu.Lock()
	killing, stopping := s.killing, s.stopping
	i.mu.Unlock()
	switch {
	case killing:
	case stopping:
		i.logger.Debug("plugin exited after stop", "pid", s.child.pid, "exit_code", code)
	default:
		i.logger.Error("plugin exited unexpectedly", "pid", s.child.pid, "exit_code", code)
		metrics.RecordCrash(i.def.Name)
	}
	i.killSession(s)
}

func (i *Instance) startPassthrough(s *session) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if s.killing || i.cur != s {
		return ErrExited
	}
	if i.bus != nil {
		s.pass = startPassthrough(i.bus, s.bridge)
	}
	return nil
}

// IsLoaded reports whether a process exists and has not exited.
func (i *Instance) IsLoaded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cur != nil && !i.cur.child.hasExited()
}

// IsCommand reports whether the plugin registered name at init.
func (i *Instance) IsCommand(name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range i.commands {
		if c == name {
			return true
		}
	}
	return false
}

// Commands returns a copy of the registered commands.
func (i *Instance) Commands() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.commands))
	copy(out, i.commands)
	return out
}

func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.statusLocked()
}

func (i *Instance) statusLocked() Status {
	st := Status{
		Name:     i.def.Name,
		State:    i.state,
		Commands: append([]string{}, i.commands...),
	}
	if s := i.cur; s != nil {
		st.Loaded = !s.child.hasExited()
		st.PID = s.child.pid
		st.Cycle = s.id
	}
	if i.lastExit != nil && i.cur == nil {
		code := *i.lastExit
		st.ExitCode = &code
	}
	return st
}

func (i *Instance) emitStatus() {
	st := i.Status()
	i.logger.Debug("plugin status", "state", st.State, "loaded", st.Loaded)
	if i.opts.OnStatus != nil {
		i.opts.OnStatus(st)
	}
}

// Emit sends a request to the plugin and waits for its reply.
func (i *Instance) Emit(ctx context.Context, method string, params any) (json.RawMessage, error) {
	b := i.bridge()
	if b == nil {
		metrics.RecordRPC(i.def.Name, method, metrics.OutcomeNotLoaded, 0)
		return nil, ErrNotLoaded
	}

	started := time.Now()
	raw, err := b.Emit(ctx, method, params)
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, rpc.ErrMethodNotFound):
		outcome = metrics.OutcomeMethodNotFound
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.RecordRPC(i.def.Name, method, outcome, time.Since(started))
	return raw, err
}

// Notify sends a notification to the plugin.
func (i *Instance) Notify(method string, params any) error {
	b := i.bridge()
	if b == nil {
		return ErrNotLoaded
	}
	b.Notify(method, params)
	return nil
}

func (i *Instance) bridge() *rpc.Bridge {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cur == nil || i.cur.killing {
		return nil
	}
	return i.cur.bridge
}

// Pending returns the number of requests to the plugin awaiting a reply.
func (i *Instance) Pending() int {
	i.mu.Lock()
	s := i.cur
	i.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.bridge.Pending()
}
