// Package provider implements the read-only mobile provider database. The
// database is a YAML file mapping network IDs (MCC+MNC) to provider names
// and the APNs to try when connecting.
package provider

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/simpleiot/cellmgr/data"
)

// Debounce is how long the file must be quiet before it is reloaded
var Debounce = 500 * time.Millisecond

// File is the on-disk layout of the database
type File struct {
	Providers []Entry `yaml:"providers"`
}

// Entry is one provider. A provider may operate several networks.
type Entry struct {
	data.Provider `yaml:",inline"`
	Networks      []string `yaml:"networks,omitempty"`
}

// DB is the provider database. Lookup is safe to call while the file is
// being reloaded.
type DB struct {
	log  *log.Logger
	path string

	lock      sync.RWMutex
	providers map[string]data.Provider

	stop chan struct{}
}

// Open loads the database at path
func Open(path string) (*DB, error) {
	db := &DB{
		log:  log.New(os.Stderr, "provider: ", log.LstdFlags|log.Lmsgprefix),
		path: path,
		stop: make(chan struct{}),
	}
	if err := db.Reload(); err != nil {
		return nil, err
	}
	return db, nil
}

// Parse decodes a database file
func Parse(buf []byte) (map[string]data.Provider, error) {
	var f File
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("error parsing provider database: %w", err)
	}

	ret := make(map[string]data.Provider)
	for i, e := range f.Providers {
		if e.ID == "" && len(e.Networks) == 0 {
			return nil, fmt.Errorf("provider %v (%q) has no network id", i, e.Name)
		}
		if e.ID != "" {
			ret[e.ID] = e.Provider
		}
		for _, n := range e.Networks {
			p := e.Provider
			p.ID = n
			ret[n] = p
		}
	}
	return ret, nil
}

// Reload re-reads the file. The previous contents are kept on error.
func (db *DB) Reload() error {
	buf, err := os.ReadFile(db.path)
	if err != nil {
		return fmt.Errorf("error reading provider database: %w", err)
	}
	providers, err := Parse(buf)
	if err != nil {
		return err
	}

	db.lock.Lock()
	db.providers = providers
	db.lock.Unlock()
	db.log.Printf("loaded %v networks from %v", len(providers), db.path)
	return nil
}

// Lookup returns the provider operating networkID
func (db *DB) Lookup(networkID string) (data.Provider, bool) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	p, ok := db.providers[networkID]
	return p, ok
}

// Len returns the number of known networks
func (db *DB) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()
	return len(db.providers)
}

// Run reloads the database whenever the file changes, until Stop is
// called. The directory is watched so files replaced by rename are seen.
func (db *DB) Run() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(db.path)); err != nil {
		return fmt.Errorf("error watching %v: %w", db.path, err)
	}

	name := filepath.Base(db.path)
	var reload <-chan time.Time
	var timer *time.Timer

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("provider watcher closed")
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(Debounce)
			reload = timer.C
		case <-reload:
			reload = nil
			if err := db.Reload(); err != nil {
				db.log.Println("reload failed, keeping old database: ", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("provider watcher closed")
			}
			db.log.Println("watcher error: ", err)
		case <-db.stop:
			if timer != nil {
				timer.Stop()
			}
			return nil
		}
	}
}

// Stop stops Run
func (db *DB) Stop(_ error) {
	select {
	case <-db.stop:
	default:
		close(db.stop)
	}
}
