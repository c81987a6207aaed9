package localstore

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sq, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	bg, err := OpenBadger(WithBadgerDir(t.TempDir()), WithBadgerGC(false))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	all := map[string]Backend{
		"memory": NewMemory(),
		"sqlite": sq,
		"badger": bg,
	}
	t.Cleanup(func() {
		for _, b := range all {
			_ = b.Close()
		}
	})
	return all
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(backend)

			var got record
			if s.Load(KeyRoute, &got) {
				t.Fatalf("Load on empty store reported a value: %#v", got)
			}

			s.Save(KeyRoute, record{Name: "first", Count: 1})
			s.Save(KeyRoute, record{Name: "second", Count: 2})

			if !s.Load(KeyRoute, &got) {
				t.Fatalf("Load returned absent after Save")
			}
			if got.Name != "second" || got.Count != 2 {
				t.Fatalf("Load = %#v, want overwritten value", got)
			}

			s.Delete(KeyRoute)
			s.Delete(KeyRoute)
			if s.Load(KeyRoute, &got) {
				t.Fatalf("Load after Delete reported a value")
			}
		})
	}
}

func TestStore_KeysAreNamespaced(t *testing.T) {
	mem := NewMemory()
	a := New(mem, WithNamespace("a_"))
	b := New(mem, WithNamespace("b_"))

	a.Save(KeyLastSync, 1)
	b.Save(KeyLastSync, 2)

	var got int
	if !a.Load(KeyLastSync, &got) || got != 1 {
		t.Fatalf("namespace a = %d, want 1", got)
	}
	if !b.Load(KeyLastSync, &got) || got != 2 {
		t.Fatalf("namespace b = %d, want 2", got)
	}
	if _, err := mem.Get(DefaultNamespace + KeyLastSync); !errors.Is(err, ErrNotFound) {
		t.Fatalf("default namespace key should not exist, err = %v", err)
	}
}

type brokenBackend struct{}

func (brokenBackend) Get(string) ([]byte, error) { return nil, errors.New("disk on fire") }
func (brokenBackend) Put(string, []byte) error   { return errors.New("quota exceeded") }
func (brokenBackend) Delete(string) error        { return errors.New("read-only") }
func (brokenBackend) Close() error               { return nil }

func observed(buf *bytes.Buffer) *zap.SugaredLogger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)).Sugar()
}

func TestStore_FailuresAreLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	s := New(brokenBackend{}, WithLogger(observed(&buf)))

	s.Save(KeyPending, []int{1, 2})
	var got []int
	if s.Load(KeyPending, &got) {
		t.Fatalf("Load on broken backend reported a value")
	}
	s.Delete(KeyPending)

	out := buf.String()
	for _, want := range []string{"save failed", "load failed", "delete failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
}

func TestStore_UnencodableAndCorruptValues(t *testing.T) {
	var buf bytes.Buffer
	mem := NewMemory()
	s := New(mem, WithLogger(observed(&buf)))

	s.Save(KeyRoute, make(chan int))
	if _, err := mem.Get(DefaultNamespace + KeyRoute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unencodable value should not be written, err = %v", err)
	}

	_ = mem.Put(DefaultNamespace+KeyRoute, []byte("{not-json"))
	var got record
	if s.Load(KeyRoute, &got) {
		t.Fatalf("corrupt value should load as absent")
	}
	if !strings.Contains(buf.String(), "decode value failed") {
		t.Fatalf("corrupt value not logged: %s", buf.String())
	}
}

func TestOpen(t *testing.T) {
	for _, name := range []string{BackendMemory, BackendSQLite, BackendBadger} {
		b, err := Open(name, t.TempDir(), nil)
		if err != nil {
			t.Fatalf("Open(%q) returned error: %v", name, err)
		}
		_ = b.Close()
	}
	if _, err := Open("etcd", t.TempDir(), nil); err == nil {
		t.Fatalf("Open with unknown backend returned nil error")
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	New(first).Save(KeyLastSync, 42)
	_ = first.Close()

	second, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	var got int
	if !New(second).Load(KeyLastSync, &got) || got != 42 {
		t.Fatalf("value after reopen = %d, want 42", got)
	}
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenBadger(WithBadgerDir(dir), WithBadgerGC(false))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	New(first).Save(KeyLastSync, 7)
	_ = first.Close()

	second, err := OpenBadger(WithBadgerDir(dir), WithBadgerGC(false))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	var got int
	if !New(second).Load(KeyLastSync, &got) || got != 7 {
		t.Fatalf("value after reopen = %d, want 7", got)
	}
}

func TestStore_LoadErrSeparatesMissingFromBroken(t *testing.T) {
	s := New(NewMemory())

	var got record
	found, err := s.LoadErr(KeyRoute, &got)
	if found || err != nil {
		t.Fatalf("LoadErr on missing key = (%v, %v), want (false, nil)", found, err)
	}

	s.Save(KeyRoute, []int{1, 2})
	found, err = s.LoadErr(KeyRoute, &got)
	if found || err == nil {
		t.Fatalf("LoadErr on mismatched value = (%v, %v), want decode error", found, err)
	}
	if !strings.Contains(err.Error(), "decode") {
		t.Fatalf("error = %v, want decode failure", err)
	}

	s.Save(KeyRoute, record{Name: "ok"})
	found, err = s.LoadErr(KeyRoute, &got)
	if !found || err != nil || got.Name != "ok" {
		t.Fatalf("LoadErr = (%v, %v, %#v)", found, err, got)
	}
}
