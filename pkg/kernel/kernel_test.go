package kernel_test

import (
	"testing"

	"github.com/brickingsoft/ioqueue/pkg/kernel"
)

func TestParse(t *testing.T) {
	cases := []struct {
		release string
		want    kernel.Version
	}{
		{"6.8.0-45-generic", kernel.Version{Kernel: 6, Major: 8, Minor: 0, Flavor: "-45-generic"}},
		{"5.15", kernel.Version{Kernel: 5, Major: 15}},
		{"4.19.112+", kernel.Version{Kernel: 4, Major: 19, Minor: 112, Flavor: "+"}},
	}
	for _, c := range cases {
		v, err := kernel.Parse(c.release)
		if err != nil {
			t.Fatal(c.release, err)
		}
		if v != c.want {
			t.Errorf("%s: got %+v, want %+v", c.release, v, c.want)
		}
	}
	if _, err := kernel.Parse("garbage"); err == nil {
		t.Error("expected error for garbage release")
	}
}

func TestCompare(t *testing.T) {
	a := kernel.Version{Kernel: 5, Major: 10, Minor: 3}
	b := kernel.Version{Kernel: 5, Major: 11, Minor: 0}
	if kernel.Compare(a, b) != -1 || kernel.Compare(b, a) != 1 || kernel.Compare(a, a) != 0 {
		t.Fatal("compare is not ordered")
	}
}

func TestGet(t *testing.T) {
	v, err := kernel.Get()
	if err != nil {
		t.Skip(err)
	}
	t.Log(v)
}
