package perfdb

import (
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type pair struct {
	X, Y int
}

func (p *pair) Visit(f func(val *int, name string)) {
	f(&p.X, "x")
	f(&p.Y, "y")
}

func tempDb(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perf.db")
	db, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return db
}

func writeFile(t *testing.T, db *DB, content string) {
	t.Helper()
	if err := os.WriteFile(db.Path(), []byte(content), 0o644); err != nil {
		t.Fatalf("write db file: %v", err)
	}
}

func readFile(t *testing.T, db *DB) string {
	t.Helper()
	data, err := os.ReadFile(db.Path())
	if err != nil {
		t.Fatalf("read db file: %v", err)
	}
	return string(data)
}

func TestFindRecordFromExistingFile(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	writeFile(t, db, "1,2=1:5,6;0:3,4\n")

	rec, err := db.FindRecord("1,2")
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	if rec == nil {
		t.Fatalf("record not found")
	}

	var v pair
	if !rec.GetValues("0", &v) || (v != pair{X: 3, Y: 4}) {
		t.Fatalf("id 0: got %+v", v)
	}
	if !rec.GetValues("1", &v) || (v != pair{X: 5, Y: 6}) {
		t.Fatalf("id 1: got %+v", v)
	}
	if rec.GetValues("2", &v) {
		t.Fatalf("absent id reported present")
	}
}

func TestMissingFileActsEmpty(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	rec, err := db.FindRecord("1,2")
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}
}

func TestStoreRecordWritesCanonicalLine(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	rec := NewRecord("1,2")
	if !rec.SetValues("1", &pair{X: 5, Y: 6}) {
		t.Fatalf("SetValues failed")
	}
	if !rec.SetValues("0", &pair{X: 3, Y: 4}) {
		t.Fatalf("SetValues failed")
	}
	if err := db.StoreRecord(rec); err != nil {
		t.Fatalf("StoreRecord: %v", err)
	}
	if got := readFile(t, db); got != "1,2=0:3,4;1:5,6\n" {
		t.Fatalf("file content: got %q", got)
	}
}

func TestStorePrunesEmptyRecord(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	writeFile(t, db, "1,2=0:3,4\n")
	if err := db.StoreRecord(NewRecord("1,2")); err != nil {
		t.Fatalf("StoreRecord: %v", err)
	}
	if got := readFile(t, db); got != "" {
		t.Fatalf("empty record not pruned: %q", got)
	}
}

func TestUpdateMergesIntoExistingRecord(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	if err := db.Update("1,2", "0", &pair{X: 3, Y: 4}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := db.Update("1,2", "1", &pair{X: 5, Y: 6}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := db.Update("1,2", "0", &pair{X: 7, Y: 8}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var v pair
	loaded, err := db.Load("1,2", "0", &v)
	if err != nil || !loaded {
		t.Fatalf("Load: loaded=%v err=%v", loaded, err)
	}
	if (v != pair{X: 7, Y: 8}) {
		t.Fatalf("id 0 after overwrite: got %+v", v)
	}
	loaded, err = db.Load("1,2", "1", &v)
	if err != nil || !loaded {
		t.Fatalf("Load: loaded=%v err=%v", loaded, err)
	}
	if (v != pair{X: 5, Y: 6}) {
		t.Fatalf("id 1 kept: got %+v", v)
	}
}

func TestUpdateIdenticalPayloadLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	if err := db.Update("1,2", "0", &pair{X: 3, Y: 4}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	before, err := os.Stat(db.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := db.Update("1,2", "0", &pair{X: 3, Y: 4}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after, err := os.Stat(db.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("identical update rewrote the file")
	}
}

func TestRemoveDropsEmptyRecord(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	writeFile(t, db, "1,2=0:3,4;1:5,6\n")

	removed, err := db.Remove("1,2", "0")
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	if got := readFile(t, db); got != "1,2=1:5,6\n" {
		t.Fatalf("after first remove: %q", got)
	}

	removed, err = db.Remove("1,2", "1")
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	if got := readFile(t, db); got != "" {
		t.Fatalf("record not dropped when empty: %q", got)
	}

	removed, err = db.Remove("1,2", "1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Fatalf("remove of absent id reported success")
	}
}

func TestUnparseableLinesPreservedVerbatim(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	garbage := "#nonsense"
	writeFile(t, db, garbage+"\n1,2=0:3,4\n")

	if err := db.Update("5,6", "0", &pair{X: 1, Y: 2}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	content := readFile(t, db)
	if !strings.Contains(content, garbage) {
		t.Fatalf("garbage line dropped: %q", content)
	}
	if !strings.Contains(content, "1,2=0:3,4") {
		t.Fatalf("existing record lost: %q", content)
	}
	if !strings.Contains(content, "5,6=0:1,2") {
		t.Fatalf("new record missing: %q", content)
	}
}

func TestKeysInFileOrder(t *testing.T) {
	t.Parallel()

	db := tempDb(t)
	writeFile(t, db, "9,9=0:1,1\n1,2=0:3,4\n")
	keys, err := db.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "9,9" || keys[1] != "1,2" {
		t.Fatalf("Keys: got %v", keys)
	}
}

func TestParallelWritersTwoHandles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "perf.db")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := a.Update("common", fmt.Sprintf("a%d", i), &pair{X: i, Y: i}); err != nil {
				t.Errorf("handle a: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if err := b.Update("common", fmt.Sprintf("b%d", i), &pair{X: i, Y: -i}); err != nil {
				t.Errorf("handle b: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rec, err := a.FindRecord("common")
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	if rec == nil || rec.Len() != 100 {
		t.Fatalf("expected 100 ids, got %v", rec)
	}
}

// Mirrors the classic multi-writer workload: each worker updates a
// shared record and its own private one; afterwards every write must be
// present exactly as issued.
func TestMultithreadedWorkload(t *testing.T) {
	t.Parallel()

	const workers = 8
	const opsPerWorker = 20

	path := filepath.Join(t.TempDir(), "perf.db")
	rng := rand.New(rand.NewSource(435345))

	type op struct {
		key, id string
		value   pair
	}
	plans := make([][]op, workers)
	for w := range plans {
		for i := 0; i < opsPerWorker; i++ {
			var o op
			o.value = pair{X: rng.Intn(1000), Y: rng.Intn(1000)}
			if rng.Intn(2) == 0 {
				o.key = "common,0"
				o.id = fmt.Sprintf("w%d-i%d", w, i)
			} else {
				o.key = fmt.Sprintf("unique,%d", w)
				o.id = fmt.Sprintf("i%d", i)
			}
			plans[w] = append(plans[w], o)
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			db, err := New(path)
			if err != nil {
				t.Errorf("worker %d: New: %v", w, err)
				return
			}
			for _, o := range plans[w] {
				if err := db.Update(o.key, o.id, &o.value); err != nil {
					t.Errorf("worker %d: Update: %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	check, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for w := range plans {
		for _, o := range plans[w] {
			var got pair
			loaded, err := check.Load(o.key, o.id, &got)
			if err != nil || !loaded {
				t.Fatalf("%s:%s loaded=%v err=%v", o.key, o.id, loaded, err)
			}
			if got != o.value {
				t.Fatalf("%s:%s got %+v want %+v", o.key, o.id, got, o.value)
			}
		}
	}
}

// TestHelperWriter is not a test; it is the body of one writer process
// spawned by TestMultiprocessStress.
func TestHelperWriter(t *testing.T) {
	if os.Getenv("PERFDB_HELPER") != "1" {
		t.Skip("helper process body")
	}
	worker, err := strconv.Atoi(os.Getenv("PERFDB_HELPER_WORKER"))
	if err != nil {
		t.Fatalf("worker index: %v", err)
	}
	db, err := New(os.Getenv("PERFDB_HELPER_PATH"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 20; i++ {
		v := pair{X: worker*1000 + i, Y: i}
		if err := db.Update("common,0", fmt.Sprintf("w%d-i%d", worker, i), &v); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
}

func TestMultiprocessStress(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("spawns subprocesses")
	}

	const procs = 4
	path := filepath.Join(t.TempDir(), "perf.db")

	cmds := make([]*exec.Cmd, procs)
	for w := 0; w < procs; w++ {
		cmd := exec.Command(os.Args[0], "-test.run=TestHelperWriter$")
		cmd.Env = append(os.Environ(),
			"PERFDB_HELPER=1",
			"PERFDB_HELPER_PATH="+path,
			"PERFDB_HELPER_WORKER="+strconv.Itoa(w),
		)
		if err := cmd.Start(); err != nil {
			t.Fatalf("start worker %d: %v", w, err)
		}
		cmds[w] = cmd
	}
	for w, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			t.Fatalf("worker %d: %v", w, err)
		}
	}

	db, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for w := 0; w < procs; w++ {
		for i := 0; i < 20; i++ {
			var got pair
			loaded, err := db.Load("common,0", fmt.Sprintf("w%d-i%d", w, i), &got)
			if err != nil || !loaded {
				t.Fatalf("w%d-i%d: loaded=%v err=%v", w, i, loaded, err)
			}
			if want := (pair{X: w*1000 + i, Y: i}); got != want {
				t.Fatalf("w%d-i%d: got %+v want %+v", w, i, got, want)
			}
		}
	}
}

func TestRecordSetRawRejectsDelimiters(t *testing.T) {
	t.Parallel()

	rec := NewRecord("k")
	for _, bad := range []string{"", "a;b", "a=b", "a:b"} {
		if rec.SetRaw("id", bad) {
			t.Errorf("payload %q accepted", bad)
		}
		if rec.SetRaw(bad, "1") {
			t.Errorf("id %q accepted", bad)
		}
	}
	if !rec.SetRaw("id", "1,2,3") {
		t.Fatalf("comma payload rejected")
	}
}
