package htk

import "testing"

func TestParsePath(t *testing.T) {
	tests := []struct {
		entry    string
		logical  string
		physical string
		first    int
		last     int
		hasRange bool
		wantErr  bool
	}{
		{entry: "utt1.mfc", logical: "utt1.mfc", physical: "utt1.mfc"},
		{entry: "utt1.mfc[0,99]", logical: "utt1.mfc", physical: "utt1.mfc", first: 0, last: 99, hasRange: true},
		{entry: "spk/utt1.mfc=arch.chunk[100,249]", logical: "spk/utt1.mfc", physical: "arch.chunk", first: 100, last: 249, hasRange: true},
		{entry: "utt1.mfc[5,2]", wantErr: true},
		{entry: "utt1.mfc[5]", wantErr: true},
		{entry: "utt1.mfc[a,b]", wantErr: true},
		{entry: "", wantErr: true},
		{entry: "=x[0,1]", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			p, err := ParsePath(tt.entry)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v", err)
			}
			if err != nil {
				return
			}
			if p.Logical != tt.logical || p.Physical != tt.physical {
				t.Errorf("logical=%q physical=%q", p.Logical, p.Physical)
			}
			if p.First != tt.first || p.Last != tt.last || p.HasRange() != tt.hasRange {
				t.Errorf("range=[%d,%d] hasRange=%v", p.First, p.Last, p.HasRange())
			}
		})
	}
}

func TestNumFrames(t *testing.T) {
	p, err := ParsePath("u.mfc[10,19]")
	if err != nil {
		t.Fatal(err)
	}
	n, err := p.NumFrames()
	if err != nil || n != 10 {
		t.Errorf("n=%d err=%v", n, err)
	}

	p, err = ParsePath("u.mfc")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.NumFrames(); err != ErrNoFrameRange {
		t.Errorf("err=%v, want ErrNoFrameRange", err)
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		entry, key string
	}{
		{"spk1/utt1.mfc[0,9]", "spk1/utt1"},
		{"utt1.lab.mfc", "utt1.lab"},
		{"noext", "noext"},
		{"dir.d/noext", "dir.d/noext"},
		{"logical/utt.mfc=phys.chunk[0,9]", "logical/utt"},
	}
	for _, tt := range tests {
		p, err := ParsePath(tt.entry)
		if err != nil {
			t.Fatalf("%s: %v", tt.entry, err)
		}
		if got := p.Key(); got != tt.key {
			t.Errorf("Key(%q)=%q, want %q", tt.entry, got, tt.key)
		}
	}
}

func TestKindNameRoundTrip(t *testing.T) {
	for _, name := range []string{"MFCC", "FBANK", "MFCC_E_D_A", "USER", "LPCEPSTRA", "MFCC_0"} {
		kind, err := ParmKind(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got := KindName(kind); got != name {
			t.Errorf("KindName(ParmKind(%q))=%q", name, got)
		}
	}
	if _, err := ParmKind("BOGUS"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
