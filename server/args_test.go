package server

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newFlags() *flag.FlagSet {
	return flag.NewFlagSet("test", flag.ContinueOnError)
}

func TestArgsDefaults(t *testing.T) {
	o, err := Args(nil, newFlags())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultOptions(), o); diff != "" {
		t.Error("defaults: ", diff)
	}
}

func TestArgsPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "cellular.yaml")
	err := os.WriteFile(cfg, []byte(`
store: file.sqlite
pppd: /opt/pppd
ntpServer: pool.ntp.org
allowRoaming: true
pppOptions:
  - noipdefault
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("SIOT_CELL_PPPD", "/env/pppd")
	t.Setenv("SIOT_CELL_ALLOW_ROAMING", "false")
	t.Setenv("SIOT_CELL_STORE", "env.sqlite")

	o, err := Args([]string{"-config", cfg, "-store", "flag.sqlite"}, newFlags())
	if err != nil {
		t.Fatal(err)
	}

	if o.StoreFile != "flag.sqlite" {
		t.Error("flag did not win: ", o.StoreFile)
	}
	if o.PPPD != "/env/pppd" {
		t.Error("env did not override file: ", o.PPPD)
	}
	if o.AllowRoaming {
		t.Error("env bool did not override file")
	}
	if o.NTPServer != "pool.ntp.org" {
		t.Error("file value lost: ", o.NTPServer)
	}
	if diff := cmp.Diff([]string{"noipdefault"}, o.PPPOptions); diff != "" {
		t.Error("ppp options: ", diff)
	}
}

func TestArgsPPPOptionsFlag(t *testing.T) {
	o, err := Args([]string{"-pppOptions", "noipdefault, usepeerdns,"}, newFlags())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"noipdefault", "usepeerdns"}, o.PPPOptions); diff != "" {
		t.Error("ppp options: ", diff)
	}
}

func TestArgsErrors(t *testing.T) {
	if _, err := Args([]string{"-mm", "2"}, newFlags()); err == nil {
		t.Error("expected error for unknown ModemManager selection")
	}

	t.Setenv("SIOT_NATS_PORT", "abc")
	if _, err := Args(nil, newFlags()); err == nil {
		t.Error("expected error for bad port")
	}
}

func TestArgsMissingConfig(t *testing.T) {
	_, err := Args([]string{"-config", filepath.Join(t.TempDir(), "none.yaml")}, newFlags())
	if err == nil {
		t.Error("expected error for missing config file")
	}
}
