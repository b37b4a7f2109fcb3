package xlockmgr

import (
	"errors"
	"strings"
	"testing"
)

func FuzzSubmitRelease(f *testing.F) {
	f.Add("R", uint8(1), false, false)
	f.Add("", uint8(1), false, false)
	f.Add("-reserved", uint8(2), false, false)
	f.Add("doc", uint8(2), true, false)
	f.Add("doc", uint8(2), false, true)
	f.Add("doc", uint8(1), true, true)
	f.Add("中文名称", uint8(0), false, false)

	f.Fuzz(func(t *testing.T, name string, mode uint8, ifAvailable, steal bool) {
		m := newForTest(t)

		opts := []RequestOption{WithMode(Mode(mode))}
		if ifAvailable {
			opts = append(opts, IfAvailable())
		}
		if steal {
			opts = append(opts, Steal())
		}

		wantReject := name == "" || strings.HasPrefix(name, "-") || !Mode(mode).IsValid() ||
			(ifAvailable && steal) || (steal && Mode(mode) != Exclusive)

		tk, err := m.Submit(name, opts...)
		if wantReject {
			if !errors.Is(err, ErrNotSupported) {
				t.Fatalf("Submit(%q) error = %v, want ErrNotSupported", name, err)
			}
			if m.Len() != 0 {
				t.Fatalf("rejected request left %d names", m.Len())
			}
			return
		}
		if err != nil {
			t.Fatalf("Submit(%q) error = %v", name, err)
		}
		if tk.State() != StateGranted {
			t.Fatalf("first request on %q state = %s", name, tk.State())
		}
		if err := tk.Release(); err != nil {
			t.Fatalf("Release error = %v", err)
		}
		if !errors.Is(tk.Release(), ErrNotHeld) {
			t.Fatal("second Release should return ErrNotHeld")
		}
		if m.Len() != 0 {
			t.Fatalf("name %q not collected", name)
		}
	})
}
