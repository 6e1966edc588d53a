package db

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/sim"
	"github.com/banshee-data/drill.sim/internal/monitoring"
	"github.com/banshee-data/drill.sim/internal/timeutil"
)

var _ sim.Observer = (*Recorder)(nil)

// RecorderOptions tunes a Recorder. Zero values take defaults.
type RecorderOptions struct {
	RecordEvery   int           // keep one cycle in N (default 1)
	QueueSize     int           // records buffered between the haptic thread and the writer (default 4096)
	BatchSize     int           // samples per insert transaction (default 256)
	FlushInterval time.Duration // flush a partial batch after this long (default 250ms)
	Clock         timeutil.Clock
}

func (o RecorderOptions) withDefaults() RecorderOptions {
	if o.RecordEvery < 1 {
		o.RecordEvery = 1
	}
	if o.QueueSize < 1 {
		o.QueueSize = 4096
	}
	if o.BatchSize < 1 {
		o.BatchSize = 256
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 250 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// Recorder is a sim.Observer that samples cycles into a session. The
// haptic thread only performs a non-blocking channel send; inserts happen
// on the recorder's own goroutine in batches. Records that do not fit in
// the queue are dropped and counted.
type Recorder struct {
	db      *DB
	session string
	opts    RecorderOptions

	queue chan Sample
	stop  chan struct{}
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	recorded atomic.Uint64
	dropped  atomic.Uint64

	errMu   sync.Mutex
	lastErr error
}

// NewRecorder starts a recorder writing into sessionID.
func NewRecorder(db *DB, sessionID string, opts RecorderOptions) *Recorder {
	r := newRecorder(db, sessionID, opts)
	r.start()
	return r
}

func newRecorder(db *DB, sessionID string, opts RecorderOptions) *Recorder {
	opts = opts.withDefaults()
	return &Recorder{
		db:      db,
		session: sessionID,
		opts:    opts,
		queue:   make(chan Sample, opts.QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *Recorder) start() {
	r.startOnce.Do(func() { go r.run() })
}

// SessionID returns the session being recorded.
func (r *Recorder) SessionID() string { return r.session }

// ObserveCycle implements sim.Observer.
func (r *Recorder) ObserveCycle(rec sim.CycleRecord) {
	if rec.Cycle%uint64(r.opts.RecordEvery) != 0 {
		return
	}
	select {
	case r.queue <- SampleFromRecord(rec):
	default:
		r.dropped.Add(1)
		monitoring.InstrumentRecorderDrop(1)
	}
}

// Recorded returns the number of samples written so far.
func (r *Recorder) Recorded() uint64 { return r.recorded.Load() }

// Dropped returns the number of samples lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

func (r *Recorder) run() {
	defer close(r.done)
	ticker := r.opts.Clock.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]Sample, 0, r.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.db.InsertSamples(r.session, batch); err != nil {
			monitoring.Logf("[recorder] failed to write %d samples: %v", len(batch), err)
			r.setErr(err)
		} else {
			r.recorded.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case s := <-r.queue:
			batch = append(batch, s)
			if len(batch) >= r.opts.BatchSize {
				flush()
			}
		case <-ticker.C():
			flush()
		case <-r.stop:
			for {
				select {
				case s := <-r.queue:
					batch = append(batch, s)
					if len(batch) >= r.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) setErr(err error) {
	r.errMu.Lock()
	r.lastErr = err
	r.errMu.Unlock()
}

// Close drains the queue, writes the final batch and stamps the session's
// end time and counters. Cycles observed after Close are never written.
func (r *Recorder) Close() error {
	var err error
	r.stopOnce.Do(func() {
		r.start()
		close(r.stop)
		<-r.done

		r.errMu.Lock()
		werr := r.lastErr
		r.errMu.Unlock()

		if eerr := r.db.EndSession(r.session, r.opts.Clock.Now(), r.Recorded(), r.Dropped()); eerr != nil {
			err = eerr
			return
		}
		if werr != nil {
			err = fmt.Errorf("recorder: %w", werr)
		}
		if d := r.Dropped(); d > 0 {
			monitoring.Logf("[recorder] session %s dropped %d samples", r.session, d)
		}
	})
	return err
}
