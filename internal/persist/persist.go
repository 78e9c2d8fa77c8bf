package persist

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ElliotLearnsThings/KVOpt/internal/store"
	"github.com/ElliotLearnsThings/KVOpt/internal/wire"
)

// FileName is the persistence file inside the data directory.
const FileName = "cache.dat"

// Persister saves the store to a flat file of concatenated key/value
// records and loads it back. The file has no header and no separators;
// a record is the 63 key bytes followed by the 64 raw value bytes.
type Persister struct {
	path   string
	store  *store.Store
	logger *slog.Logger
}

var nowUnix = func() int64 { return time.Now().Unix() }

func New(dir string, st *store.Store, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Persister{
		path:   filepath.Join(dir, FileName),
		store:  st,
		logger: logger,
	}
}

// Path returns the persistence file path.
func (p *Persister) Path() string { return p.path }

// Save writes every stored pair except the reserved key and pairs already
// expired at save time. The file is written to a temporary sibling and
// renamed into place so a crash mid-write leaves the previous file intact.
// The dirty flag is cleared only when the whole save succeeded.
func (p *Persister) Save() error {
	snap := p.store.Snapshot()
	now := nowUnix()

	buf := make([]byte, 0, len(snap)*wire.RecordSize)
	for key, value := range snap {
		if key.IsZero() {
			continue
		}
		if wire.DecodeValue(value).Expired(now) {
			continue
		}
		buf = append(buf, key[:]...)
		buf = append(buf, value[:]...)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	p.store.ClearDirty()
	return nil
}

// Load reads the persistence file into the store. A missing file is an
// empty store, not an error. Records under the reserved key or already
// expired at load time are skipped; a trailing partial record is discarded.
func (p *Persister) Load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", p.path, err)
	}

	if rest := len(data) % wire.RecordSize; rest != 0 {
		p.logger.Warn("discarding trailing partial record", "path", p.path, "bytes", rest)
		data = data[:len(data)-rest]
	}

	now := nowUnix()
	for off := 0; off < len(data); off += wire.RecordSize {
		var key wire.Key
		copy(key[:], data[off:off+wire.KeySize])
		if key.IsZero() {
			continue
		}
		var value wire.RawValue
		copy(value[:], data[off+wire.KeySize:off+wire.RecordSize])
		if wire.DecodeValue(value).Expired(now) {
			continue
		}
		p.store.Insert(key, value)
	}
	return nil
}
