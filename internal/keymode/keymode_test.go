package keymode

import (
	"sync"
	"testing"
)

func TestLayout(t *testing.T) {
	c := NewCache()
	cases := []struct {
		keys int
		want map[int]ColumnType
	}{
		{4, nil},
		{7, map[int]ColumnType{3: Special}},
		{8, map[int]ColumnType{0: Scratch}},
		{9, map[int]ColumnType{4: Special}},
		{16, map[int]ColumnType{0: Scratch, 15: Scratch}},
		{1, nil},
	}
	for _, tc := range cases {
		got := c.Layout(tc.keys)
		if len(got) != tc.keys {
			t.Fatalf("%dK: len = %d", tc.keys, len(got))
		}
		for col, typ := range got {
			want, ok := tc.want[col]
			if !ok {
				want = Normal
			}
			if typ != want {
				t.Errorf("%dK col %d = %s, want %s", tc.keys, col, typ, want)
			}
		}
	}
	if c.Len() != len(cases) {
		t.Errorf("cached modes = %d, want %d", c.Len(), len(cases))
	}
}

func TestLayoutUnsupportedNotCached(t *testing.T) {
	c := NewCache()
	if got := c.Layout(20); len(got) != 20 || got[10] != Normal {
		t.Errorf("20K layout = %v", got)
	}
	if got := c.Layout(0); len(got) != 0 {
		t.Errorf("0K layout = %v", got)
	}
	if c.Len() != 0 {
		t.Errorf("unsupported modes cached: %d", c.Len())
	}
}

func TestLayoutReturnsCopy(t *testing.T) {
	var c Cache
	l := c.Layout(7)
	l[3] = Scratch
	if c.Layout(7)[3] != Special {
		t.Error("caller mutated cached layout")
	}
}

func TestLayoutConcurrent(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(keys int) {
			defer wg.Done()
			c.Layout(keys)
		}(i%MaxKeys + 1)
	}
	wg.Wait()
	if c.Len() != MaxKeys {
		t.Errorf("cached modes = %d, want %d", c.Len(), MaxKeys)
	}
}
