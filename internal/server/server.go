package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ElliotLearnsThings/KVOpt/internal/dispatch"
	"github.com/ElliotLearnsThings/KVOpt/internal/persist"
	"github.com/ElliotLearnsThings/KVOpt/internal/store"
	"github.com/ElliotLearnsThings/KVOpt/internal/wire"
)

const (
	DefaultSweepInterval = 5 * time.Second
	DefaultSaveInterval  = 30 * time.Second
)

// readBufferFrames sizes the input buffer; everything a single read returns
// beyond one frame is dispatched as one batch.
const readBufferFrames = 512

type Config struct {
	In  io.Reader
	Out io.Writer

	Store     *store.Store
	Persister *persist.Persister

	// SweepInterval and SaveInterval select the background cadence.
	// Zero or negative selects the defaults.
	SweepInterval time.Duration
	SaveInterval  time.Duration

	// SaveDirtyOnly skips periodic saves while the store is unchanged.
	SaveDirtyOnly bool

	// SweepThreshold is the mutation count between counter-driven sweeps.
	SweepThreshold int

	Verbose bool
	Logger  *slog.Logger
}

// Server owns the four duties over the shared store: the foreground frame
// loop, the sweep timer, the save timer, and shutdown. It terminates on
// context cancellation, a halt frame, or end of input, always finishing
// with one synchronous sweep and save.
type Server struct {
	cfg        Config
	store      *store.Store
	persister  *persist.Persister
	dispatcher *dispatch.Dispatcher

	sweepInterval time.Duration
	saveInterval  time.Duration

	sweepKick chan struct{}
	haltCh    chan struct{}
	haltOnce  sync.Once

	readyCh   chan struct{}
	readyOnce sync.Once

	logger *slog.Logger
}

var nowUnix = func() int64 { return time.Now().Unix() }

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	saveInterval := cfg.SaveInterval
	if saveInterval <= 0 {
		saveInterval = DefaultSaveInterval
	}

	s := &Server{
		cfg:           cfg,
		store:         cfg.Store,
		persister:     cfg.Persister,
		sweepInterval: sweepInterval,
		saveInterval:  saveInterval,
		sweepKick:     make(chan struct{}, 1),
		haltCh:        make(chan struct{}),
		readyCh:       make(chan struct{}),
		logger:        logger,
	}

	var saver dispatch.Saver
	if cfg.Persister != nil {
		saver = cfg.Persister
	}
	s.dispatcher = dispatch.New(dispatch.Config{
		Store:          cfg.Store,
		Saver:          saver,
		SweepThreshold: cfg.SweepThreshold,
		KickSweep:      s.kickSweep,
		OnHalt:         s.signalHalt,
		Logger:         logger,
	})
	return s
}

// Ready is closed once the store is loaded and the duties are about to run.
func (s *Server) Ready() <-chan struct{} {
	return s.readyCh
}

// Serve runs until ctx is canceled, a halt frame arrives, or the input
// stream ends. It returns after the final save has completed.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.persister.Load(); err != nil {
		s.logger.Warn("starting with empty store", "error", err)
	}
	if removed := s.store.Sweep(nowUnix()); removed > 0 {
		s.logf("startup sweep removed %d entries", removed)
	}
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logf("serving with %d entries from %s", s.store.Len(), s.persister.Path())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.sweepLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.saveLoop(ctx)
	}()

	// The read loop is not joined: a reader blocked in Read with no more
	// input coming can only be abandoned.
	readErr := make(chan error, 1)
	go func() {
		readErr <- s.readLoop(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case <-s.haltCh:
	case err = <-readErr:
	}

	cancel()
	wg.Wait()

	if shutdownErr := s.shutdown(); err == nil {
		err = shutdownErr
	}
	return err
}

// readLoop reads 128-byte frames, carrying any partial frame across reads.
// A read that yields one frame dispatches it alone; a read that yields
// several dispatches them as an ordered batch.
func (s *Server) readLoop(ctx context.Context) error {
	buf := make([]byte, readBufferFrames*wire.FrameSize)
	pending := 0

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := s.cfg.In.Read(buf[pending:])
		if n > 0 {
			total := pending + n
			full := total / wire.FrameSize * wire.FrameSize
			if full > 0 {
				if werr := s.dispatchChunk(buf[:full]); werr != nil {
					return werr
				}
			}
			pending = copy(buf, buf[full:total])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
	}
}

func (s *Server) dispatchChunk(chunk []byte) error {
	count := len(chunk) / wire.FrameSize

	var out []byte
	if count == 1 {
		out = s.dispatcher.Handle(wire.DecodeFrame(chunk))
	} else {
		frames := make([]wire.Frame, count)
		for i := range frames {
			frames[i] = wire.DecodeFrame(chunk[i*wire.FrameSize:])
		}
		out = s.dispatcher.HandleBatch(frames)
	}

	if len(out) == 0 {
		return nil
	}
	if _, err := s.cfg.Out.Write(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.sweepKick:
		}

		start := time.Now()
		if removed := s.store.Sweep(nowUnix()); removed > 0 {
			s.logf("sweep removed %d entries in %s", removed, time.Since(start))
		}
	}
}

func (s *Server) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.cfg.SaveDirtyOnly && !s.store.Dirty() {
			continue
		}
		if err := s.persister.Save(); err != nil {
			s.logger.Error("periodic save failed", "error", err)
			continue
		}
		s.logf("saved %d entries to %s", s.store.Len(), s.persister.Path())
	}
}

// kickSweep schedules an asynchronous sweep. The channel holds one pending
// kick at most; further kicks while one is queued are dropped.
func (s *Server) kickSweep() {
	select {
	case s.sweepKick <- struct{}{}:
	default:
	}
}

func (s *Server) signalHalt() {
	s.haltOnce.Do(func() { close(s.haltCh) })
}

func (s *Server) shutdown() error {
	s.store.Sweep(nowUnix())
	if err := s.persister.Save(); err != nil {
		s.logger.Error("final save failed", "error", err)
		return err
	}
	s.logf("final save wrote %d entries to %s", s.store.Len(), s.persister.Path())
	return nil
}

func (s *Server) logf(format string, args ...any) {
	if !s.cfg.Verbose {
		return
	}
	s.logger.Info(fmt.Sprintf(format, args...))
}
