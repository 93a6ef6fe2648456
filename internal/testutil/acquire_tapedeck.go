package testutil

import (
	"context"
	"os"
	"path/filepath"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/andrebq/gatekeeper/tapedeck"
)

type (
	TestLog interface {
		Fatal(...interface{})
		Log(...interface{})
	}
)

func AcquireWritableCassette(ctx context.Context, t TestLog, name string) (*cassette.Control, func()) {
	dir, err := os.MkdirTemp("", "gatekeeper-tests")
	if err != nil {
		t.Fatal(err)
	}
	abspath := filepath.Join(dir, name)
	ctl, err := cassette.LoadControlCassette(ctx, abspath, true, cassette.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return ctl, func() {
		err := ctl.Close()
		if err != nil {
			t.Log("unable to close cassette", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}

// AcquireTapedeck returns a deck backed by sqlite cassettes under a
// temporary directory, loader runs once for each namespace listed.
func AcquireTapedeck(ctx context.Context, t TestLog, loader func(context.Context, string, cassette.Tape) error, namespaces ...string) (*tapedeck.D, func()) {
	dir, err := os.MkdirTemp("", "gatekeeper-tests")
	if err != nil {
		t.Fatal(err)
	}
	d := tapedeck.New(&tapedeck.SQLite{Dir: dir})
	for _, ns := range namespaces {
		tape, err := d.Open(ctx, ns)
		if err != nil {
			t.Fatal(err)
		}
		if loader != nil {
			if err := loader(ctx, ns, tape); err != nil {
				t.Fatal(err)
			}
		}
	}
	return d, func() {
		err := d.Close()
		if err != nil {
			t.Log("Unable to close tapedeck", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}
