package dump

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/store"
	"github.com/rs/zerolog/log"
)

var errDumpNotEnabled = errors.New("dump mode is not enabled")

// Dumper snapshots every tier store into a per-version directory and
// restores the running version's snapshot on startup. Activation purges
// directories of superseded versions. Entries are length+crc framed
// JSON records inside a gzip stream; a corrupt frame stops the load of
// that file, keeping whatever was already restored.
type Dumper struct {
	cfg     *config.DumpCfg
	version string
	stores  *store.Stores
}

func New(cfg *config.DumpCfg, version string, stores *store.Stores) *Dumper {
	return &Dumper{cfg: cfg, version: version, stores: stores}
}

// Dump writes every store into <dir>/<version>/<tier>.dump.gz.
func (d *Dumper) Dump(ctx context.Context) error {
	if !d.cfg.Enabled() {
		return errDumpNotEnabled
	}
	start := time.Now()

	dir := filepath.Join(d.cfg.Dir, d.version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}

	var written, failures int
	for _, name := range d.stores.Names() {
		st, ok := d.stores.Get(name)
		if !ok {
			continue
		}
		n, err := d.dumpStore(ctx, dir, st)
		written += n
		if err != nil {
			failures++
			log.Err(err).Str("tier", name).Msg("[dump] tier dump failed")
		}
	}

	log.Info().
		Int("written", written).
		Int("fails", failures).
		Str("elapsed", time.Since(start).String()).
		Msg("dumping finished")

	if failures > 0 {
		return fmt.Errorf("dump finished with %d failed tiers", failures)
	}
	return nil
}

func (d *Dumper) dumpStore(ctx context.Context, dir string, st *store.Store) (int, error) {
	name := filepath.Join(dir, st.Name()+".dump.gz")
	tmp := name + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}

	gw := gzip.NewWriter(f)
	bw := bufio.NewWriterSize(gw, 512*1024)

	var written int
	for _, e := range st.Entries() {
		if ctx.Err() != nil {
			break
		}
		data, err := json.Marshal(e.Snapshot())
		if err != nil {
			continue
		}

		var lenBuf [8]byte
		binary.LittleEndian.PutUint32(lenBuf[0:4], uint32(len(data)))
		binary.LittleEndian.PutUint32(lenBuf[4:8], crc32.ChecksumIEEE(data))
		if _, err = bw.Write(lenBuf[:]); err != nil {
			break
		}
		if _, err = bw.Write(data); err != nil {
			break
		}
		written++
	}

	_ = bw.Flush()
	_ = gw.Close()
	_ = f.Close()
	if err := os.Rename(tmp, name); err != nil {
		return written, fmt.Errorf("rename %s: %w", tmp, err)
	}
	return written, nil
}

// Load restores the running version's snapshot. Tiers found in the
// snapshot but absent from the config are materialized so activation
// can purge them explicitly.
func (d *Dumper) Load(ctx context.Context) error {
	if !d.cfg.Enabled() {
		return errDumpNotEnabled
	}

	dir := filepath.Join(d.cfg.Dir, d.version)
	files, _ := filepath.Glob(filepath.Join(dir, "*.dump.gz"))
	if len(files) == 0 {
		return fmt.Errorf("no dump files found in %s", dir)
	}

	var loaded, failures int
	for _, file := range files {
		n, err := d.loadFile(ctx, file)
		loaded += n
		if err != nil {
			failures++
			log.Err(err).Str("file", file).Msg("[load] dump file failed")
		}
	}

	log.Info().
		Int("loaded", loaded).
		Int("fails", failures).
		Msg("loading finished")

	if failures > 0 {
		return fmt.Errorf("load finished with %d failed files", failures)
	}
	return nil
}

func (d *Dumper) loadFile(ctx context.Context, file string) (int, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("gzip open %s: %w", file, err)
	}
	defer gzr.Close()

	br := bufio.NewReaderSize(gzr, 512*1024)

	var loaded int
	var metaBuf [8]byte
	for {
		if ctx.Err() != nil {
			return loaded, ctx.Err()
		}
		if _, err = io.ReadFull(br, metaBuf[:]); err == io.EOF {
			return loaded, nil
		} else if err != nil {
			return loaded, fmt.Errorf("read frame meta: %w", err)
		}

		size := binary.LittleEndian.Uint32(metaBuf[0:4])
		sum := binary.LittleEndian.Uint32(metaBuf[4:8])

		data := make([]byte, size)
		if _, err = io.ReadFull(br, data); err != nil {
			return loaded, fmt.Errorf("read frame body: %w", err)
		}
		if crc32.ChecksumIEEE(data) != sum {
			return loaded, errors.New("frame crc mismatch")
		}

		var snap store.EntrySnapshot
		if err = json.Unmarshal(data, &snap); err != nil {
			return loaded, fmt.Errorf("decode frame: %w", err)
		}

		d.stores.Ensure(snap.TierName).Put(store.FromSnapshot(snap))
		loaded++
	}
}

// PurgeStale deletes the dump directories of every superseded version.
func (d *Dumper) PurgeStale() error {
	if !d.cfg.Enabled() {
		return nil
	}

	dirs, err := os.ReadDir(d.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dump base dir: %w", err)
	}

	for _, entry := range dirs {
		if !entry.IsDir() || entry.Name() == d.version {
			continue
		}
		if err := os.RemoveAll(filepath.Join(d.cfg.Dir, entry.Name())); err != nil {
			log.Err(err).Str("dir", entry.Name()).Msg("[purge] remove stale version failed")
			continue
		}
		log.Info().Str("dir", entry.Name()).Msg("[purge] removed stale version dump")
	}
	return nil
}
