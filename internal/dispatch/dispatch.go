package dispatch

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ElliotLearnsThings/KVOpt/internal/store"
	"github.com/ElliotLearnsThings/KVOpt/internal/wire"
)

// DefaultSweepThreshold is how many mutations pass between counter-driven
// sweep kicks when the configuration does not say otherwise.
const DefaultSweepThreshold = 100

// Saver persists the store. The halt opcode saves through it before the
// orchestrator is told to stop.
type Saver interface {
	Save() error
}

type Config struct {
	Store *store.Store
	Saver Saver

	// SweepThreshold is the mutation count that schedules a sweep.
	// Zero or negative selects DefaultSweepThreshold.
	SweepThreshold int

	// KickSweep schedules an asynchronous sweep. May be nil.
	KickSweep func()

	// OnHalt is called after a halt frame has saved. May be nil.
	OnHalt func()

	Logger *slog.Logger
}

// Dispatcher interprets decoded frames against the store and produces the
// per-frame response records.
type Dispatcher struct {
	store          *store.Store
	saver          Saver
	sweepThreshold int64
	kickSweep      func()
	onHalt         func()

	logger *slog.Logger

	mutations atomic.Int64
}

var nowUnix = func() int64 { return time.Now().Unix() }

func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	threshold := cfg.SweepThreshold
	if threshold <= 0 {
		threshold = DefaultSweepThreshold
	}

	return &Dispatcher{
		store:          cfg.Store,
		saver:          cfg.Saver,
		sweepThreshold: int64(threshold),
		kickSweep:      cfg.KickSweep,
		onHalt:         cfg.OnHalt,
		logger:         logger,
	}
}

// Handle applies one frame and returns the bytes to write back: the stored
// payload plus a newline on a get hit, a two-byte ack record otherwise, or
// nothing for halt and unrecognized opcodes.
func (d *Dispatcher) Handle(f wire.Frame) []byte {
	switch f.Op {
	case wire.OpGet:
		if f.Key.IsZero() {
			return []byte(wire.RespEmptyKey)
		}
		v, ok := d.store.Get(f.Key)
		if !ok {
			return []byte(wire.RespMiss)
		}
		p := v.Payload()
		return append(p[:], '\n')

	case wire.OpInsert:
		if f.Key.IsZero() {
			return []byte(wire.RespEmptyKey)
		}
		// The caller's creation timestamp is ignored; values are stamped
		// at insertion time.
		d.store.Insert(f.Key, f.Value.WithCreatedAt(nowUnix()))
		d.store.MarkDirty()
		d.countMutation()
		return []byte(wire.RespInserted)

	case wire.OpRemove:
		d.store.Remove(f.Key)
		d.store.MarkDirty()
		d.countMutation()
		return []byte(wire.RespRemoved)

	case wire.OpHalt:
		d.halt()
		return nil

	default:
		return nil
	}
}

// HandleBatch applies frames strictly in order and returns their responses
// concatenated. The dirty flag is set once at the end regardless of what
// the batch contained.
func (d *Dispatcher) HandleBatch(frames []wire.Frame) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, d.Handle(f)...)
	}
	d.store.MarkDirty()
	return out
}

func (d *Dispatcher) halt() {
	if d.saver != nil {
		if err := d.saver.Save(); err != nil {
			d.logger.Error("save on halt failed", "error", err)
		}
	}
	if d.onHalt != nil {
		d.onHalt()
	}
}

func (d *Dispatcher) countMutation() {
	if d.mutations.Add(1) < d.sweepThreshold {
		return
	}
	d.mutations.Store(0)
	if d.kickSweep != nil {
		d.kickSweep()
	}
}
