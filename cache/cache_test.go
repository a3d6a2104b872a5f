package cache

import (
	"testing"
	"time"
)

func TestLRU_GetAdd(t *testing.T) {
	c := NewLRU(2)
	k := Key{Text: "hola", Source: "es", Target: "en"}

	if _, ok := c.Get(k); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Add(k, "Hello")
	got, ok := c.Get(k)
	if !ok || got != "Hello" {
		t.Fatalf("Get = %q, %v; want Hello, true", got, ok)
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU(2)
	a := Key{Text: "a", Source: "es", Target: "en"}
	b := Key{Text: "b", Source: "es", Target: "en"}
	d := Key{Text: "d", Source: "es", Target: "en"}

	c.Add(a, "A")
	c.Add(b, "B")
	c.Get(a) // a becomes most recent
	c.Add(d, "D")

	if _, ok := c.Get(b); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get(a); !ok {
		t.Error("a should still be cached")
	}
	if _, ok := c.Get(d); !ok {
		t.Error("d should be cached")
	}
	if n := c.Len(); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestLRU_KeyIncludesLanguagePair(t *testing.T) {
	c := NewLRU(0)
	c.Add(Key{Text: "hola", Source: "es", Target: "en"}, "Hello")

	if _, ok := c.Get(Key{Text: "hola", Source: "es", Target: "fr"}); ok {
		t.Error("different target must not hit")
	}
}

func TestLRU_UpdateAndPurge(t *testing.T) {
	c := NewLRU(3)
	k := Key{Text: "x", Source: "es", Target: "en"}
	c.Add(k, "one")
	c.Add(k, "two")

	if got, _ := c.Get(k); got != "two" {
		t.Errorf("Get = %q, want two", got)
	}
	if n := c.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}

	c.Purge()
	if n := c.Len(); n != 0 {
		t.Errorf("Len after Purge = %d, want 0", n)
	}
}

func TestLRU_Remove(t *testing.T) {
	c := NewLRU(2)
	a := Key{Text: "a", Source: "es", Target: "en"}
	b := Key{Text: "b", Source: "es", Target: "en"}
	c.Add(a, "A")
	c.Add(b, "B")

	if !c.Remove(a) {
		t.Fatal("Remove(a) = false, want true")
	}
	if c.Remove(a) {
		t.Error("second Remove(a) = true, want false")
	}
	if _, ok := c.Get(a); ok {
		t.Error("a still cached after Remove")
	}
	if got, ok := c.Get(b); !ok || got != "B" {
		t.Errorf("Get(b) = %q, %v", got, ok)
	}

	// The freed slot is reusable without evicting b.
	c.Add(Key{Text: "c"}, "C")
	if _, ok := c.Get(b); !ok {
		t.Error("b evicted after Remove freed a slot")
	}
}

func TestStore_SetGet(t *testing.T) {
	s, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	defer s.Close()

	key := KeyFor(Key{Text: "hola", Source: "es", Target: "en"})
	if _, ok := s.Get(key); ok {
		t.Fatal("expected miss")
	}

	if err := s.Set(key, &Entry{Text: "Hello", CreatedAt: time.Now()}, DefaultTTL); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Text != "Hello" {
		t.Errorf("Text = %q, want Hello", got.Text)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get(key); ok {
		t.Error("expected miss after Delete")
	}
}

func TestGenerateKey_Stable(t *testing.T) {
	a := GenerateKey("es", "en", "hola")
	b := GenerateKey("es", "en", "hola")
	c := GenerateKey("es", "enhola")

	if a != b {
		t.Error("same parts must produce same key")
	}
	if a == c {
		t.Error("part boundaries must affect the key")
	}
}
