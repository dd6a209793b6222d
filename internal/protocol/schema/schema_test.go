package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/pack"
	"github.com/danmuck/spinelctl/internal/testutil/testlog"
)

func TestDefaultRegistryCoversCoreProperties(t *testing.T) {
	testlog.Start(t)
	r := Default()
	d, ok := r.Lookup(protocol.PropPHYChan)
	if !ok || d.Name != "PHY_CHAN" || d.Signature.String() != "C" {
		t.Fatalf("unexpected PHY_CHAN descriptor: %+v ok=%v", d, ok)
	}
	for _, name := range []string{"LAST_STATUS", "prop_ncp_version", " stream_net ", "CAPS"} {
		if _, ok := r.ByName(name); !ok {
			t.Fatalf("missing descriptor %q", name)
		}
	}
	list := r.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Fatalf("list not ordered at %d", i)
		}
	}
}

func TestResolveAcceptsNumericIDs(t *testing.T) {
	testlog.Start(t)
	r := Default()
	for _, ref := range []string{"0x21", "33", "PHY_CHAN"} {
		d, ok := r.Resolve(ref)
		if !ok || d.ID != protocol.PropPHYChan {
			t.Fatalf("resolve %q: %+v ok=%v", ref, d, ok)
		}
	}
	if _, ok := r.Resolve("0x7fff"); ok {
		t.Fatalf("expected unknown id to miss")
	}
	if got := r.Name(0x7fff); got != "prop(0x7fff)" {
		t.Fatalf("unexpected fallback name: %q", got)
	}
}

func TestRegisterRejectsBadDescriptors(t *testing.T) {
	testlog.Start(t)
	r := Default()
	var ve ValidationError
	err := r.Register(0x3c00, "VENDOR_BAD", "A(C)C")
	if !errors.As(err, &ve) || ve.PropertyID != 0x3c00 {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if err := r.Register(0x3c01, "PHY_CHAN", "C"); !errors.As(err, &ve) {
		t.Fatalf("expected name collision, got %v", err)
	}
	if err := r.Register(0x3c02, "  ", "C"); !errors.As(err, &ve) {
		t.Fatalf("expected missing name, got %v", err)
	}
}

func TestLoadFileMergesVendorTable(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "vendor.toml")
	data := []byte(`
[[property]]
id = 0x3c00
name = "VENDOR_COUNTERS"
signature = "t(LL)"

[[property]]
id = 0x21
name = "PHY_CHAN"
signature = "S"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := Default()
	if err := LoadFile(path, r); err != nil {
		t.Fatalf("load: %v", err)
	}
	d, ok := r.ByName("VENDOR_COUNTERS")
	if !ok || d.ID != 0x3c00 {
		t.Fatalf("vendor descriptor missing: %+v", d)
	}
	if _, _, err := pack.Decode(d.Signature, []byte{8, 0, 1, 0, 0, 0, 2, 0, 0, 0}); err != nil {
		t.Fatalf("decode with loaded signature: %v", err)
	}
	if d, _ := r.Lookup(protocol.PropPHYChan); d.Signature.String() != "S" {
		t.Fatalf("override not applied: %+v", d)
	}
}

func TestLoadRejectsInvalidEntryWithoutPartialMerge(t *testing.T) {
	testlog.Start(t)
	r := Default()
	err := Load([]byte(`
[[property]]
id = 0x3c10
name = "VENDOR_OK"
signature = "C"

[[property]]
id = 0x3c11
name = "VENDOR_BROKEN"
signature = "t(C"
`), r)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.PropertyID != 0x3c11 {
		t.Fatalf("expected ValidationError for 0x3c11, got %v", err)
	}
	if _, ok := r.ByName("VENDOR_OK"); ok {
		t.Fatalf("valid entry registered despite failed load")
	}
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"), r); err == nil {
		t.Fatalf("expected missing file error")
	}
}
