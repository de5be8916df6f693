package provider

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/simpleiot/cellmgr/data"
)

var testDB = `
providers:
  - id: "310410"
    name: Example Mobile
    country: us
    apns:
      - {apn: broadband}
      - {apn: phone, username: wap, password: secret}
  - name: Roam Only
    requiresRoaming: true
    networks: ["20404", "20408"]
    apns:
      - {apn: iot.example}
`

func writeDB(t *testing.T, dir, contents string) string {
	p := filepath.Join(dir, "providers.yaml")
	if err := os.WriteFile(p, []byte(contents), 0644); err != nil {
		t.Fatal("error writing db: ", err)
	}
	return p
}

func TestLookup(t *testing.T) {
	db, err := Open(writeDB(t, t.TempDir(), testDB))
	if err != nil {
		t.Fatal("open failed: ", err)
	}

	p, ok := db.Lookup("310410")
	if !ok {
		t.Fatal("provider not found")
	}
	exp := data.Provider{
		ID:      "310410",
		Name:    "Example Mobile",
		Country: "us",
		APNs: []data.APN{
			{Name: "broadband"},
			{Name: "phone", Username: "wap", Password: "secret"},
		},
	}
	if diff := cmp.Diff(exp, p); diff != "" {
		t.Error("provider mismatch: ", diff)
	}

	p, ok = db.Lookup("20408")
	if !ok || p.ID != "20408" || !p.RequiresRoaming {
		t.Errorf("network list not expanded: %+v", p)
	}

	if _, ok := db.Lookup("99999"); ok {
		t.Error("unknown network found")
	}
	if db.Len() != 3 {
		t.Error("expected 3 networks, got ", db.Len())
	}
}

func TestParseMissingID(t *testing.T) {
	_, err := Parse([]byte("providers:\n  - name: nobody\n"))
	if err == nil {
		t.Fatal("expected error for a provider without network id")
	}
}

func TestReloadKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(writeDB(t, dir, testDB))
	if err != nil {
		t.Fatal("open failed: ", err)
	}

	writeDB(t, dir, "providers: [")
	if err := db.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if _, ok := db.Lookup("310410"); !ok {
		t.Fatal("old database dropped")
	}
}

func TestWatch(t *testing.T) {
	Debounce = 10 * time.Millisecond
	dir := t.TempDir()
	db, err := Open(writeDB(t, dir, testDB))
	if err != nil {
		t.Fatal("open failed: ", err)
	}

	done := make(chan error)
	go func() { done <- db.Run() }()
	defer func() {
		db.Stop(nil)
		if err := <-done; err != nil {
			t.Error("run returned: ", err)
		}
	}()

	// give the watcher time to start
	time.Sleep(100 * time.Millisecond)
	writeDB(t, dir, "providers:\n  - {id: \"26201\", name: Other}\n")

	start := time.Now()
	for time.Since(start) < 5*time.Second {
		if _, ok := db.Lookup("26201"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("database was not reloaded")
}
