package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"raidforge.ai/internal/sim/raid"
)

const Version = 1

// Header is written as a JSON line ahead of the gob body so tools can
// inspect a snapshot without decoding the store.
type Header struct {
	Version     int    `json:"version"`
	Tick        uint64 `json:"tick"`
	Raids       int    `json:"raids"`
	ActiveRaids int    `json:"active_raids"`
	Cooldowns   int    `json:"cooldowns"`
	CatalogsSHA string `json:"catalogs_sha,omitempty"`
}

type SnapshotV1 struct {
	Header Header
	State  raid.StoreState
}

// New builds a snapshot of st taken at tick.
func New(tick uint64, st raid.StoreState, catalogsSHA string) SnapshotV1 {
	h := Header{
		Version:     Version,
		Tick:        tick,
		Raids:       len(st.Raids),
		Cooldowns:   len(st.Cooldowns),
		CatalogsSHA: catalogsSHA,
	}
	for _, r := range st.Raids {
		if r.Status.Active() {
			h.ActiveRaids++
		}
	}
	return SnapshotV1{Header: h, State: st}
}

// WriteSnapshot writes snap to path through a temp file and rename, so a
// crash never leaves a truncated snapshot behind.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line of a snapshot.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// PathFor names the snapshot file for tick inside dir.
func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}

// Latest returns the snapshot with the highest tick in dir. ok is false when
// the directory holds none.
func Latest(dir string) (path string, tick uint64, ok bool, err error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	var ticks []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, perr := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if perr != nil {
			continue
		}
		ticks = append(ticks, n)
	}
	if len(ticks) == 0 {
		return "", 0, false, nil
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	tick = ticks[len(ticks)-1]
	return PathFor(dir, tick), tick, true, nil
}

// Prune keeps the newest keep snapshots in dir and removes the rest.
func Prune(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var ticks []uint64
	for _, e := range entries {
		if n, perr := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64); perr == nil && strings.HasSuffix(e.Name(), ".snap.zst") {
			ticks = append(ticks, n)
		}
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] > ticks[j] })
	for i := keep; i < len(ticks); i++ {
		if err := os.Remove(PathFor(dir, ticks[i])); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
