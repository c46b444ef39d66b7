package dbc

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testDBC = `VERSION ""

BO_ 528 TRACK_0: 8 RADAR
 SG_ LONG_DIST : 7|16@0+ (0.01,0) [0|300] "m" XXX
 SG_ LAT_DIST : 23|16@0- (0.01,0) [-50|50] "m" XXX
 SG_ REL_SPEED : 39|16@0- (0.01,0) [-100|100] "m/s" XXX
 SG_ NEW_TRACK : 55|1@0+ (1,0) [0|1] "" XXX
 SG_ VALID : 54|1@0+ (1,0) [0|1] "" XXX

BO_ 835 ACC_CONTROL: 8 DSU
 SG_ ACCEL_CMD : 7|16@0- (0.01,0) [-20|20] "m/s^2" XXX
 SG_ SET_ME_X63 : 23|8@0+ (1,0) [0|255] "" XXX
 SG_ SET_ME_1 : 31|8@0+ (1,0) [0|255] "" XXX
 SG_ RELEASE_STANDSTILL : 39|1@0+ (1,0) [0|1] "" XXX
 SG_ CANCEL_REQ : 38|1@0+ (1,0) [0|1] "" XXX
 SG_ CHECKSUM : 63|8@0+ (1,0) [0|255] "" XXX

BO_ 1001 INTEL_PAIR: 2 XXX
 SG_ LOW : 0|8@1+ (1,0) [0|255] "" XXX
 SG_ HIGH : 8|8@1+ (1,0) [0|255] "" XXX
`

func loadTestDB(t *testing.T) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dbc")
	if err := os.WriteFile(path, []byte(testDBC), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return db
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.dbc"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error %v does not wrap fs.ErrNotExist", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad BO_ line", "BO_ nonsense\n"},
		{"SG_ before BO_", ` SG_ X : 7|8@0+ (1,0) [0|255] "" XXX` + "\n"},
		{"bad factor", "BO_ 1 M: 8 X\n SG_ A : 7|8@0+ (zero,0) [0|255] \"\" XXX\n"},
		{"zero-length signal", "BO_ 1 M: 8 X\n SG_ A : 7|0@0+ (1,0) [0|255] \"\" XXX\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.dbc")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("Load = %v, want *ParseError", err)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	db := loadTestDB(t)

	if m, ok := db.MessageByID(528); !ok || m.Name != "TRACK_0" {
		t.Errorf("MessageByID(528) = %v, %v", m, ok)
	}
	if m, ok := db.MessageByName("ACC_CONTROL"); !ok || m.ID != 835 {
		t.Errorf("MessageByName(ACC_CONTROL) = %v, %v", m, ok)
	}
	if _, ok := db.MessageByID(9999); ok {
		t.Error("MessageByID(9999) should not exist")
	}

	want := []string{"ACC_CONTROL", "INTEL_PAIR", "TRACK_0"}
	if diff := cmp.Diff(want, db.Messages()); diff != "" {
		t.Errorf("Messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeBigEndian(t *testing.T) {
	db := loadTestDB(t)

	// LONG_DIST raw 0x1234 = 4660 -> 46.60 m; VALID bit set; NEW_TRACK set.
	data := []byte{0x12, 0x34, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x00}
	fields, err := db.Decode(528, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := fields["LONG_DIST"]; got != 46.60 {
		t.Errorf("LONG_DIST = %v, want 46.60", got)
	}
	if got := fields["VALID"]; got != 1 {
		t.Errorf("VALID = %v, want 1", got)
	}
	if got := fields["NEW_TRACK"]; got != 1 {
		t.Errorf("NEW_TRACK = %v, want 1", got)
	}
}

func TestDecodeSigned(t *testing.T) {
	db := loadTestDB(t)

	// LAT_DIST raw 0xFFFF = -1 -> -0.01 m
	data := []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00}
	fields, err := db.Decode(528, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := fields["LAT_DIST"]; got != -0.01 {
		t.Errorf("LAT_DIST = %v, want -0.01", got)
	}
}

func TestDecodeLittleEndian(t *testing.T) {
	db := loadTestDB(t)

	fields, err := db.Decode(1001, []byte{0xAB, 0xCD})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if fields["LOW"] != 0xAB || fields["HIGH"] != 0xCD {
		t.Errorf("fields = %v, want LOW=0xAB HIGH=0xCD", fields)
	}
}

func TestDecodeErrors(t *testing.T) {
	db := loadTestDB(t)

	var derr *DecodeError
	if _, err := db.Decode(9999, make([]byte, 8)); !errors.As(err, &derr) {
		t.Errorf("unknown id: %v, want *DecodeError", err)
	}
	if _, err := db.Decode(528, []byte{0x01}); !errors.As(err, &derr) {
		t.Errorf("short payload: %v, want *DecodeError", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	db := loadTestDB(t)

	in := map[string]float64{
		"ACCEL_CMD":          -1.5,
		"SET_ME_X63":         0x63,
		"SET_ME_1":           1,
		"RELEASE_STANDSTILL": 1,
		"CANCEL_REQ":         0,
		"CHECKSUM":           113,
	}
	id, payload, err := db.Encode("ACC_CONTROL", in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if id != 835 {
		t.Errorf("id = %d, want 835", id)
	}

	out, err := db.Decode(id, payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-in +out):\n%s", diff)
	}
}

func TestEncodeErrors(t *testing.T) {
	db := loadTestDB(t)
	var eerr *EncodeError

	if _, _, err := db.Encode("NOPE", nil); !errors.As(err, &eerr) {
		t.Errorf("unknown message: %v, want *EncodeError", err)
	}

	missing := map[string]float64{"ACCEL_CMD": 0}
	if _, _, err := db.Encode("ACC_CONTROL", missing); !errors.As(err, &eerr) {
		t.Errorf("missing field: %v, want *EncodeError", err)
	}

	outOfRange := map[string]float64{
		"ACCEL_CMD":          500, // declared range is [-20, 20]
		"SET_ME_X63":         0x63,
		"SET_ME_1":           1,
		"RELEASE_STANDSTILL": 1,
		"CANCEL_REQ":         0,
		"CHECKSUM":           113,
	}
	if _, _, err := db.Encode("ACC_CONTROL", outOfRange); !errors.As(err, &eerr) {
		t.Errorf("out of range: %v, want *EncodeError", err)
	}
}
