package game

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/puzzle"
)

// DefaultFrameInterval is roughly 60 frames per second.
const DefaultFrameInterval = 16 * time.Millisecond

// SessionConfig configures a Session.
type SessionConfig struct {
	Controller     Config
	InitialLevel   string
	DifficultyHint *int
	FrameInterval  time.Duration
}

// Session hosts a Controller for concurrent callers. Every controller call
// runs under one mutex, so level state is only ever mutated by one
// goroutine at a time. It also drives the frame loop and replaces the
// controller when a game:restart is requested.
type Session struct {
	mu      sync.Mutex
	cfg     SessionConfig
	ctrl    *Controller
	log     *logging.Logger
	ctx     context.Context
	stopped bool

	restart    atomic.Bool
	restartSub *bus.Subscription

	stopCh   chan struct{}
	wg       sync.WaitGroup
	lastTick time.Time
}

// NewSession creates a session with an Uninitialized controller.
func NewSession(cfg SessionConfig) *Session {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	s := &Session{
		cfg:    cfg,
		ctrl:   New(cfg.Controller),
		log:    cfg.Controller.Logger,
		ctx:    context.Background(),
		stopCh: make(chan struct{}),
	}
	s.restartSub = cfg.Controller.Bus.Subscribe(bus.TopicGameRestart, func(bus.Message) {
		s.restart.Store(true)
	})
	return s
}

// Start loads the initial level and starts the frame loop. ctx bounds the
// loads the session performs on its own, such as restarts.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	err := s.ctrl.Initialize(ctx, s.cfg.InitialLevel, s.cfg.DifficultyHint)
	s.lastTick = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.frameLoop()
	return err
}

// Stop halts the frame loop and disposes the controller.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartSub.Revoke()
	return s.ctrl.Dispose()
}

func (s *Session) frameLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			dt := now.Sub(s.lastTick)
			s.lastTick = now
			s.ctrl.Tick(dt)
			s.afterCall()
			s.mu.Unlock()
		}
	}
}

// afterCall handles a restart requested during the call that just ran.
// Callers hold s.mu.
func (s *Session) afterCall() {
	if !s.restart.CompareAndSwap(true, false) || s.stopped {
		return
	}
	if s.ctrl.State() == StateDisposed {
		s.ctrl = New(s.cfg.Controller)
		if err := s.ctrl.Initialize(s.ctx, s.cfg.InitialLevel, s.cfg.DifficultyHint); err != nil {
			s.log.Error("game.restart_failed", "restart failed", map[string]interface{}{
				"level_id": s.cfg.InitialLevel,
				"error":    err,
			})
		}
		return
	}
	if err := s.ctrl.LoadLevel(s.ctx, s.cfg.InitialLevel); err != nil {
		s.log.Error("game.restart_failed", "restart failed", map[string]interface{}{
			"level_id": s.cfg.InitialLevel,
			"error":    err,
		})
	}
}

// Tick runs one frame outside the ticker. Used by tests and replays.
func (s *Session) Tick(dt time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ran := s.ctrl.Tick(dt)
	s.afterCall()
	return ran
}

func (s *Session) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Pause()
}

func (s *Session) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Resume()
}

func (s *Session) Activate(name, input string) (puzzle.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.ctrl.Activate(name, input)
	s.afterCall()
	return res, err
}

func (s *Session) Hover(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Hover(name)
}

func (s *Session) Unhover(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Unhover(name)
}

func (s *Session) LoadLevel(ctx context.Context, levelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ctrl.LoadLevel(ctx, levelID)
	s.afterCall()
	return err
}

func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ctrl.Advance(ctx)
	s.afterCall()
	return err
}

func (s *Session) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ctrl.Exit()
	s.afterCall()
	return err
}

// Publish sends a message on the bus under the session lock, so handlers
// that touch the controller are serialized with everything else.
func (s *Session) Publish(topic bus.Topic, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.cfg.Controller.Bus.Publish(topic, payload)
	s.afterCall()
	return err
}

func (s *Session) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.State()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Snapshot()
}

// Objects returns the names of the current level's objects.
func (s *Session) Objects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	if lvl := s.ctrl.Level(); lvl != nil {
		for _, o := range lvl.Objects() {
			names = append(names, o.Name)
		}
	}
	return names
}
