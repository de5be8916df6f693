package system

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blang/semver/v4"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		file  string
		field string
		exp   semver.Version
	}{
		{"VERSION_ID=\"1.2\"\nTesting with quotes", "VERSION_ID", semver.Version{Major: 1, Minor: 2}},
		{"NAME=Yoe\nVERSION_ID=2023.04.1\n", "VERSION_ID", semver.Version{Major: 2023, Minor: 4, Patch: 1}},
		{"IMAGE_VERSION='3.1.4'", "IMAGE_VERSION", semver.Version{Major: 3, Minor: 1, Patch: 4}},
	}

	for _, test := range tests {
		v, err := parseVersion([]byte(test.file), test.field)
		if err != nil {
			t.Errorf("%q: %v", test.file, err)
			continue
		}
		if !v.Equals(test.exp) {
			t.Errorf("%q: got %v, expected %v", test.file, v, test.exp)
		}
	}

	if _, err := parseVersion([]byte("NAME=x"), "VERSION_ID"); err == nil {
		t.Error("expected error for a missing field")
	}
}

func TestReadOSVersion(t *testing.T) {
	ReleaseFile = filepath.Join(t.TempDir(), "os-release")
	if err := os.WriteFile(ReleaseFile, []byte("VERSION_ID=4.5.6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	v, err := ReadOSVersion("VERSION_ID")
	if err != nil {
		t.Fatal("read failed: ", err)
	}
	if v.String() != "4.5.6" {
		t.Error("got ", v)
	}
}
