// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import "testing"

func TestPairKey(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{name: "descending order kept", a: "beta", b: "alpha", want: "beta-alpha"},
		{name: "ascending input reordered", a: "alpha", b: "beta", want: "beta-alpha"},
		{name: "equal ids", a: "item", b: "item", want: "item-item"},
		{name: "numeric ids compare lexicographically", a: "10", b: "9", want: "9-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PairKey(tt.a, tt.b); got != tt.want {
				t.Errorf("PairKey(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPairKey_Symmetry(t *testing.T) {
	ids := []string{"a", "b", "zz", "item-1", "0", "42"}
	for _, a := range ids {
		for _, b := range ids {
			if PairKey(a, b) != PairKey(b, a) {
				t.Errorf("PairKey(%q, %q) != PairKey(%q, %q)", a, b, b, a)
			}
		}
	}
}

func TestSplitPairKey(t *testing.T) {
	hi, lo, err := SplitPairKey("beta-alpha")
	if err != nil {
		t.Fatalf("SplitPairKey() error = %v", err)
	}
	if hi != "beta" || lo != "alpha" {
		t.Errorf("SplitPairKey() = (%q, %q), want (beta, alpha)", hi, lo)
	}

	if _, _, err := SplitPairKey("noseparator"); err == nil {
		t.Error("SplitPairKey() on malformed key, want error")
	}
}

func TestEncodeScores(t *testing.T) {
	idx := NewIndex()
	a := idx.GetOrAdd("a")
	b := idx.GetOrAdd("b")
	c := idx.GetOrAdd("c")

	acc := NewAccumulator()
	acc.Add(a, a, 4)
	acc.Add(b, b, 4)
	acc.Add(a, b, 4)
	acc.Add(b, c, 2) // c has no self-similarity entry
	acc.Add(c, c, 0) // zero cells are not emitted

	t.Run("emits nonzero upper triangle only", func(t *testing.T) {
		got := EncodeScores(acc, idx, false)
		want := map[string]float64{"a-a": 4, "b-b": 4, "b-a": 4, "c-b": 2}
		if len(got) != len(want) {
			t.Fatalf("EncodeScores() = %v, want %v", got, want)
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("EncodeScores()[%q] = %v, want %v", k, got[k], v)
			}
		}
	})

	t.Run("knownOnly drops pairs without self-similar sides", func(t *testing.T) {
		got := EncodeScores(acc, idx, true)
		if _, ok := got["c-b"]; ok {
			t.Error("EncodeScores(knownOnly) kept pair with non-self-similar side")
		}
		if len(got) != 3 {
			t.Errorf("EncodeScores(knownOnly) has %d entries, want 3", len(got))
		}
	})
}

func TestDecodeScores(t *testing.T) {
	t.Run("assigns fresh indices for unseen ids", func(t *testing.T) {
		idx := NewIndex()
		acc := NewAccumulator()
		scores := map[string]float64{"b-a": 4, "a-a": 4, "b-b": 4}

		if err := DecodeScores(scores, idx, acc, false); err != nil {
			t.Fatalf("DecodeScores() error = %v", err)
		}
		if idx.Len() != 2 {
			t.Errorf("index has %d ids, want 2", idx.Len())
		}
		a, _ := idx.Get("a")
		b, _ := idx.Get("b")
		if got := acc.Get(a, b); got != 4 {
			t.Errorf("acc[a][b] = %v, want 4", got)
		}
	})

	t.Run("knownOnly drops pairs introducing unseen ids", func(t *testing.T) {
		idx := NewIndex()
		a := idx.GetOrAdd("a")
		acc := NewAccumulator()

		scores := map[string]float64{"a-a": 4, "b-a": 3, "b-b": 9}
		if err := DecodeScores(scores, idx, acc, true); err != nil {
			t.Fatalf("DecodeScores() error = %v", err)
		}
		if idx.Len() != 1 {
			t.Errorf("index grew to %d ids, want 1", idx.Len())
		}
		if got := acc.Get(a, a); got != 4 {
			t.Errorf("acc[a][a] = %v, want 4", got)
		}
		if acc.Len() != 1 {
			t.Errorf("accumulator has %d cells, want 1", acc.Len())
		}
	})

	t.Run("malformed key fails", func(t *testing.T) {
		if err := DecodeScores(map[string]float64{"bad": 1}, NewIndex(), NewAccumulator(), false); err == nil {
			t.Error("DecodeScores() with malformed key, want error")
		}
	})
}

func TestCodecRoundTrip(t *testing.T) {
	idx := NewIndex()
	acc := NewAccumulator()
	for i, pair := range [][2]string{{"x", "x"}, {"y", "y"}, {"x", "y"}, {"z", "z"}, {"z", "x"}} {
		acc.Add(idx.GetOrAdd(pair[0]), idx.GetOrAdd(pair[1]), float64(i)+1.5)
	}

	encoded := EncodeScores(acc, idx, false)

	idx2 := NewIndex()
	acc2 := NewAccumulator()
	if err := DecodeScores(encoded, idx2, acc2, false); err != nil {
		t.Fatalf("DecodeScores() error = %v", err)
	}

	if acc2.Len() != acc.Len() {
		t.Fatalf("round trip cell count = %d, want %d", acc2.Len(), acc.Len())
	}
	acc.Range(func(i, j int, v float64) bool {
		a, _ := idx.ID(i)
		b, _ := idx.ID(j)
		i2, ok := idx2.Get(a)
		if !ok {
			t.Fatalf("id %q lost in round trip", a)
		}
		j2, ok := idx2.Get(b)
		if !ok {
			t.Fatalf("id %q lost in round trip", b)
		}
		if got := acc2.Get(i2, j2); got != v {
			t.Errorf("round trip cell (%s,%s) = %v, want %v", a, b, got, v)
		}
		return true
	})
}
