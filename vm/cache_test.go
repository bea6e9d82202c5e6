package vm

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/google/uuid"
)

func TestRoutineCachePutGetList(t *testing.T) {
	cache, err := OpenRoutineCache(filepath.Join(t.TempDir(), "routines.db"))
	if err != nil {
		t.Fatalf("OpenRoutineCache: %v", err)
	}
	defer cache.Close()

	created := time.Unix(1700000000, 0)
	entries := []RoutineEntry{
		{Key: "k2", ID: uuid.New(), Name: "beta", Source: "package b", Created: created},
		{Key: "k1", ID: uuid.New(), Name: "alpha", Source: "package a", Created: created},
	}
	for _, e := range entries {
		if err := cache.Put(e); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := cache.Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != entries[1].ID || got.Source != "package a" || !got.Created.Equal(created) {
		t.Errorf("Get = %+v", got)
	}

	list, err := cache.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "beta" {
		t.Errorf("List = %+v", list)
	}

	replaced := entries[0]
	replaced.Source = "package b2"
	if err := cache.Put(replaced); err != nil {
		t.Fatal(err)
	}
	if got, _ := cache.Get("k2"); got.Source != "package b2" {
		t.Errorf("replace kept %q", got.Source)
	}

	if _, err := cache.Get("missing"); !errors.Is(err, ErrRoutineNotFound) {
		t.Errorf("Get missing = %v, want ErrRoutineNotFound", err)
	}
}

func TestRoutineKeyIsContentHash(t *testing.T) {
	a, err := RoutineKey(countdown(3))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := RoutineKey(countdown(3))
	c, _ := RoutineKey(countdown(4))
	if a != b {
		t.Error("equal programs hash differently")
	}
	if a == c {
		t.Error("different programs hash equally")
	}

	renamed := countdown(3)
	renamed.Name = "other"
	if d, _ := RoutineKey(renamed); d == a {
		t.Error("name is not part of the key")
	}
	if _, err := RoutineKey(&bytecode.Program{Name: "empty"}); err != nil {
		t.Errorf("empty program: %v", err)
	}
}
