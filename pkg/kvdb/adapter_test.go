// Copyright 2025 DeFlow

package kvdb

import (
	"bytes"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func TestKVAdapterSetGetDelete(t *testing.T) {
	a := NewKVAdapter(dbm.NewMemDB())

	if v, err := a.Get([]byte("missing")); err != nil || v != nil {
		t.Fatalf("expected (nil, nil) for a missing key, got (%v, %v)", v, err)
	}

	if err := a.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("unexpected error setting key: %v", err)
	}
	v, err := a.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("unexpected error getting key: %v", err)
	}
	if !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("expected v1, got %q", v)
	}

	if err := a.Delete([]byte("k1")); err != nil {
		t.Fatalf("unexpected error deleting key: %v", err)
	}
	if v, err := a.Get([]byte("k1")); err != nil || v != nil {
		t.Fatalf("expected key to be gone after delete, got (%v, %v)", v, err)
	}
}

func TestKVAdapterNilDBIsNoOp(t *testing.T) {
	a := NewKVAdapter(nil)

	if v, err := a.Get([]byte("k")); err != nil || v != nil {
		t.Fatalf("expected (nil, nil) from a nil-backed adapter, got (%v, %v)", v, err)
	}
	if err := a.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("expected Set on a nil-backed adapter to be a no-op, got %v", err)
	}
	if err := a.Delete([]byte("k")); err != nil {
		t.Fatalf("expected Delete on a nil-backed adapter to be a no-op, got %v", err)
	}
	if err := a.IteratePrefix([]byte("k"), func(k, v []byte) bool { return true }); err != nil {
		t.Fatalf("expected IteratePrefix on a nil-backed adapter to be a no-op, got %v", err)
	}
}

func TestKVAdapterIteratePrefix(t *testing.T) {
	a := NewKVAdapter(dbm.NewMemDB())
	entries := map[string]string{
		"wf/1": "a",
		"wf/2": "b",
		"wf/3": "c",
		"ex/1": "d",
	}
	for k, v := range entries {
		if err := a.Set([]byte(k), []byte(v)); err != nil {
			t.Fatalf("unexpected error seeding key %q: %v", k, err)
		}
	}

	var got []string
	if err := a.IteratePrefix([]byte("wf/"), func(key, value []byte) bool {
		got = append(got, string(key))
		return true
	}); err != nil {
		t.Fatalf("unexpected error iterating prefix: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 keys under wf/, got %v", got)
	}
	for _, k := range got {
		if !bytes.HasPrefix([]byte(k), []byte("wf/")) {
			t.Fatalf("expected only wf/ prefixed keys, got %q", k)
		}
	}
}

func TestKVAdapterIteratePrefixStopsEarly(t *testing.T) {
	a := NewKVAdapter(dbm.NewMemDB())
	for _, k := range []string{"p/1", "p/2", "p/3"} {
		if err := a.Set([]byte(k), []byte("v")); err != nil {
			t.Fatalf("unexpected error seeding key %q: %v", k, err)
		}
	}

	count := 0
	if err := a.IteratePrefix([]byte("p/"), func(key, value []byte) bool {
		count++
		return false
	}); err != nil {
		t.Fatalf("unexpected error iterating prefix: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected iteration to stop after the first callback, got %d calls", count)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	cases := []struct {
		prefix string
		want   string
		isNil  bool
	}{
		{prefix: "ab", want: "ac"},
		{prefix: "a\xff", want: "b"},
		{prefix: "\xff\xff", isNil: true},
	}
	for _, c := range cases {
		got := prefixUpperBound([]byte(c.prefix))
		if c.isNil {
			if got != nil {
				t.Fatalf("prefixUpperBound(%q): expected nil, got %q", c.prefix, got)
			}
			continue
		}
		if !bytes.Equal(got, []byte(c.want)) {
			t.Fatalf("prefixUpperBound(%q): expected %q, got %q", c.prefix, c.want, got)
		}
	}
}
