package orderbook

import (
	"math/rand"
	"sort"
	"testing"
)

func TestLevelTreeInsertFindDelete(t *testing.T) {
	tree := NewLevelTree()
	lvl := tree.GetOrCreate(100)
	if lvl == nil {
		t.Fatal("GetOrCreate returned nil")
	}
	if tree.Find(100) != lvl {
		t.Error("Find did not return same PriceLevel")
	}

	tree.GetOrCreate(200)
	if tree.Min().Price != 100 {
		t.Error("expected min=100")
	}
	if tree.Max().Price != 200 {
		t.Error("expected max=200")
	}

	if !tree.Delete(100) {
		t.Error("Delete failed")
	}
	if tree.Find(100) != nil {
		t.Error("expected level 100 to be gone")
	}
}

func TestDeleteNonExistentLevel(t *testing.T) {
	tree := NewLevelTree()
	if tree.Delete(123) {
		t.Error("expected false when deleting non-existent level")
	}
}

func TestEmptyTreeMinMax(t *testing.T) {
	tree := NewLevelTree()
	if tree.Min() != nil || tree.Max() != nil {
		t.Error("expected nil for min/max on empty tree")
	}
}

func TestGetOrCreateDuplicate(t *testing.T) {
	tree := NewLevelTree()
	a := tree.GetOrCreate(150)
	b := tree.GetOrCreate(150)
	if a != b {
		t.Error("GetOrCreate should return the same level for a duplicate price")
	}
	if tree.Len() != 1 {
		t.Errorf("Len = %d; want 1", tree.Len())
	}
}

func TestWalkOrder(t *testing.T) {
	tree := NewLevelTree()
	for _, p := range []int64{50, 10, 90, 30, 70} {
		tree.GetOrCreate(p)
	}

	var asc []int64
	tree.WalkAsc(func(l *PriceLevel) bool {
		asc = append(asc, l.Price)
		return true
	})
	if !sort.SliceIsSorted(asc, func(i, j int) bool { return asc[i] < asc[j] }) {
		t.Errorf("WalkAsc out of order: %v", asc)
	}

	var desc []int64
	tree.WalkDesc(func(l *PriceLevel) bool {
		desc = append(desc, l.Price)
		return true
	})
	for i := range desc {
		if desc[i] != asc[len(asc)-1-i] {
			t.Fatalf("WalkDesc %v is not the reverse of WalkAsc %v", desc, asc)
		}
	}

	// Early termination.
	var n int
	tree.WalkAsc(func(*PriceLevel) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Errorf("walk visited %d levels after stop; want 2", n)
	}
}

func TestRandomizedInsertDelete(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tree := NewLevelTree()
	alive := map[int64]bool{}

	for i := 0; i < 5000; i++ {
		p := rng.Int63n(500) + 1
		if alive[p] && rng.Intn(2) == 0 {
			if !tree.Delete(p) {
				t.Fatalf("delete of known price %d failed", p)
			}
			delete(alive, p)
		} else {
			tree.GetOrCreate(p)
			alive[p] = true
		}
	}

	if tree.Len() != len(alive) {
		t.Fatalf("Len = %d; want %d", tree.Len(), len(alive))
	}

	var got []int64
	tree.WalkAsc(func(l *PriceLevel) bool {
		got = append(got, l.Price)
		return true
	})

	want := make([]int64, 0, len(alive))
	for p := range alive {
		want = append(want, p)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	if len(got) != len(want) {
		t.Fatalf("walk saw %d levels; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("walk[%d] = %d; want %d", i, got[i], want[i])
		}
	}
	if len(want) > 0 {
		if tree.Min().Price != want[0] || tree.Max().Price != want[len(want)-1] {
			t.Errorf("min/max = %d/%d; want %d/%d",
				tree.Min().Price, tree.Max().Price, want[0], want[len(want)-1])
		}
	}
}
