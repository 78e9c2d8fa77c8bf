package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ElliotLearnsThings/KVOpt/internal/store"
	"github.com/ElliotLearnsThings/KVOpt/internal/wire"
)

func testKey(s string) wire.Key {
	var k wire.Key
	copy(k[:], s)
	return k
}

func testValue(payload string, createdAt int64, expireSeconds uint16) wire.RawValue {
	var p [wire.PayloadSize]byte
	copy(p[:], payload)
	return wire.EncodeValue(p, createdAt, expireSeconds)
}

func record(key wire.Key, value wire.RawValue) []byte {
	buf := make([]byte, 0, wire.RecordSize)
	buf = append(buf, key[:]...)
	return append(buf, value[:]...)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	restore := SetNowUnixForTest(func() int64 { return 2000 })
	defer restore()

	dir := t.TempDir()
	src := store.New()
	src.Insert(testKey("alpha"), testValue("a", 1000, 0))
	src.Insert(testKey("beta"), testValue("b", 1000, 5000))
	src.Insert(testKey("gamma"), testValue("c", 1990, 60))

	if err := New(dir, src, nil).Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := store.New()
	if err := New(dir, dst, nil).Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	want := src.Snapshot()
	got := dst.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("loaded %d pairs, want %d", len(got), len(want))
	}
	for k, v := range want {
		lv, ok := got[k]
		if !ok {
			t.Fatalf("pair %q missing after load", k[:])
		}
		if lv != v {
			t.Fatalf("pair %q = %q, want %q", k[:], lv[:], v[:])
		}
	}
	if dst.Dirty() {
		t.Fatal("load should not mark the store dirty")
	}
}

func TestSaveSkipsReservedAndExpired(t *testing.T) {
	restore := SetNowUnixForTest(func() int64 { return 5000 })
	defer restore()

	dir := t.TempDir()
	src := store.New()
	var zero wire.Key
	src.Insert(zero, testValue("never", 1000, 0))
	src.Insert(testKey("stale"), testValue("old", 1000, 1))
	src.Insert(testKey("live"), testValue("new", 1000, 0))

	if err := New(dir, src, nil).Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if len(data) != wire.RecordSize {
		t.Fatalf("file holds %d bytes, want one record of %d", len(data), wire.RecordSize)
	}

	dst := store.New()
	if err := New(dir, dst, nil).Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if dst.Len() != 1 {
		t.Fatalf("loaded %d pairs, want 1", dst.Len())
	}
	if _, ok := dst.Get(testKey("live")); !ok {
		t.Fatal("surviving pair missing after load")
	}
}

func TestSaveAllExpiredWritesEmptyFile(t *testing.T) {
	restore := SetNowUnixForTest(func() int64 { return 5000 })
	defer restore()

	dir := t.TempDir()
	src := store.New()
	src.Insert(testKey("stale"), testValue("old", 1000, 1))

	if err := New(dir, src, nil).Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("stat saved file: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("file size = %d, want 0", info.Size())
	}

	dst := store.New()
	if err := New(dir, dst, nil).Load(); err != nil {
		t.Fatalf("load of empty file: %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("loaded %d pairs from empty file, want 0", dst.Len())
	}
}

func TestLoadAbsentFile(t *testing.T) {
	dst := store.New()
	if err := New(t.TempDir(), dst, nil).Load(); err != nil {
		t.Fatalf("load of absent file: %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("loaded %d pairs, want 0", dst.Len())
	}
}

func TestLoadDiscardsTrailingPartialRecord(t *testing.T) {
	restore := SetNowUnixForTest(func() int64 { return 2000 })
	defer restore()

	dir := t.TempDir()
	data := record(testKey("whole"), testValue("v", 1000, 0))
	data = append(data, "truncated"...)
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	dst := store.New()
	if err := New(dir, dst, nil).Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if dst.Len() != 1 {
		t.Fatalf("loaded %d pairs, want 1", dst.Len())
	}
}

func TestLoadSkipsReservedAndExpiredRecords(t *testing.T) {
	restore := SetNowUnixForTest(func() int64 { return 5000 })
	defer restore()

	dir := t.TempDir()
	var zero wire.Key
	data := record(zero, testValue("reserved", 1000, 0))
	data = append(data, record(testKey("stale"), testValue("old", 1000, 1))...)
	data = append(data, record(testKey("live"), testValue("new", 1000, 0))...)
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	dst := store.New()
	if err := New(dir, dst, nil).Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if dst.Len() != 1 {
		t.Fatalf("loaded %d pairs, want 1", dst.Len())
	}
	if _, ok := dst.Get(testKey("live")); !ok {
		t.Fatal("live pair missing after load")
	}
}

func TestSaveClearsDirtyOnlyOnSuccess(t *testing.T) {
	src := store.New()
	src.Insert(testKey("alpha"), testValue("a", 1000, 0))
	src.MarkDirty()

	dir := t.TempDir()
	if err := New(dir, src, nil).Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if src.Dirty() {
		t.Fatal("successful save should clear the dirty flag")
	}

	src.MarkDirty()
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	p := New(filepath.Join(blocker, "sub"), src, nil)
	if err := p.Save(); err == nil {
		t.Fatal("save into a path under a regular file should fail")
	}
	if !src.Dirty() {
		t.Fatal("failed save must leave the dirty flag set")
	}
}

func TestSaveOverwritesPreviousFile(t *testing.T) {
	restore := SetNowUnixForTest(func() int64 { return 2000 })
	defer restore()

	dir := t.TempDir()
	src := store.New()
	src.Insert(testKey("alpha"), testValue("a", 1000, 0))
	src.Insert(testKey("beta"), testValue("b", 1000, 0))
	p := New(dir, src, nil)
	if err := p.Save(); err != nil {
		t.Fatalf("first save: %v", err)
	}

	src.Remove(testKey("beta"))
	if err := p.Save(); err != nil {
		t.Fatalf("second save: %v", err)
	}

	dst := store.New()
	if err := New(dir, dst, nil).Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if dst.Len() != 1 {
		t.Fatalf("loaded %d pairs, want 1", dst.Len())
	}
	if _, ok := dst.Get(testKey("beta")); ok {
		t.Fatal("removed pair resurrected by stale file contents")
	}
}
