package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/simpleiot/cellmgr/data"

	// tell sql to use sqlite
	_ "modernc.org/sqlite"
)

// TypeMemory can be passed as the file name for an in-memory database
const TypeMemory = ":memory:"

const schemaVersion = 1

// Profiles is a SQLite backed profile store
type Profiles struct {
	log  *log.Logger
	db   *sql.DB
	meta Meta
}

// Meta is the single row of the meta table
type Meta struct {
	ID         int
	Version    int
	InstanceID string
}

// NewProfiles opens or creates the profile database in dbFile
func NewProfiles(dbFile string) (*Profiles, error) {
	ret := &Profiles{
		log: log.New(os.Stderr, "store: ", log.LstdFlags|log.Lmsgprefix),
	}

	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		return nil, err
	}
	// an in-memory database only lives as long as its connection
	db.SetMaxOpenConns(1)
	ret.db = db

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS meta (id INT NOT NULL PRIMARY KEY,
				version INT,
				instance_id TEXT)`)
	if err != nil {
		return nil, fmt.Errorf("error creating meta table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS profiles (key TEXT NOT NULL PRIMARY KEY,
				service_id TEXT,
				name TEXT,
				user_apn TEXT,
				user_username TEXT,
				user_password TEXT,
				good_apn TEXT,
				good_username TEXT,
				good_password TEXT,
				allow_roaming INT,
				ppp_username TEXT,
				ppp_password TEXT,
				time_s INT,
				time_ns INT)`)
	if err != nil {
		return nil, fmt.Errorf("error creating profiles table: %w", err)
	}

	err = db.QueryRow("SELECT id, version, instance_id FROM meta").Scan(&ret.meta.ID,
		&ret.meta.Version, &ret.meta.InstanceID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ret.meta = Meta{Version: schemaVersion, InstanceID: uuid.New().String()}
		_, err = db.Exec("INSERT INTO meta(id, version, instance_id) VALUES(?, ?, ?)",
			ret.meta.ID, ret.meta.Version, ret.meta.InstanceID)
		if err != nil {
			return nil, fmt.Errorf("error initializing meta: %w", err)
		}
		ret.log.Println("initialized profile store ", dbFile)
	case err != nil:
		return nil, fmt.Errorf("error querying meta: %w", err)
	case ret.meta.Version > schemaVersion:
		return nil, fmt.Errorf("profile store version %v is newer than %v", ret.meta.Version, schemaVersion)
	}

	return ret, nil
}

// Meta returns the database metadata
func (p *Profiles) Meta() Meta {
	return p.meta
}

func apnColumns(a *data.APN) (sql.NullString, string, string) {
	if a == nil {
		return sql.NullString{}, "", ""
	}
	return sql.NullString{String: a.Name, Valid: true}, a.Username, a.Password
}

func columnsAPN(name sql.NullString, user, pass string) *data.APN {
	if !name.Valid {
		return nil
	}
	return &data.APN{Name: name.String, Username: user, Password: pass}
}

// Load returns the profile stored for id. The bool is false if there is
// none.
func (p *Profiles) Load(id data.Identity) (data.Profile, bool, error) {
	key := id.Key()
	if key == "" {
		return data.Profile{}, false, nil
	}

	var ret data.Profile
	var userAPN, goodAPN sql.NullString
	var userUser, userPass, goodUser, goodPass string
	var timeS, timeNS int64

	err := p.db.QueryRow(`SELECT key, service_id, name, user_apn, user_username, user_password,
		good_apn, good_username, good_password, allow_roaming, ppp_username, ppp_password,
		time_s, time_ns FROM profiles WHERE key=?`, key).Scan(&ret.Key, &ret.ServiceID, &ret.Name,
		&userAPN, &userUser, &userPass, &goodAPN, &goodUser, &goodPass, &ret.AllowRoaming,
		&ret.PPPUsername, &ret.PPPPassword, &timeS, &timeNS)
	if errors.Is(err, sql.ErrNoRows) {
		return data.Profile{}, false, nil
	}
	if err != nil {
		return data.Profile{}, false, fmt.Errorf("error loading profile %v: %w", key, err)
	}

	ret.UserAPN = columnsAPN(userAPN, userUser, userPass)
	ret.LastGoodAPN = columnsAPN(goodAPN, goodUser, goodPass)
	ret.Updated = time.Unix(timeS, timeNS)
	return ret, true, nil
}

// Save inserts or replaces a profile
func (p *Profiles) Save(prof data.Profile) error {
	if prof.Key == "" {
		return errors.New("profile has no key")
	}
	if prof.Updated.IsZero() {
		prof.Updated = time.Now()
	}
	tS := prof.Updated.Unix()
	tNs := prof.Updated.UnixNano() - 1e9*tS

	userAPN, userUser, userPass := apnColumns(prof.UserAPN)
	goodAPN, goodUser, goodPass := apnColumns(prof.LastGoodAPN)

	_, err := p.db.Exec(`INSERT INTO profiles(key, service_id, name, user_apn, user_username,
		 user_password, good_apn, good_username, good_password, allow_roaming, ppp_username,
		 ppp_password, time_s, time_ns)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		 service_id = ?2,
		 name = ?3,
		 user_apn = ?4,
		 user_username = ?5,
		 user_password = ?6,
		 good_apn = ?7,
		 good_username = ?8,
		 good_password = ?9,
		 allow_roaming = ?10,
		 ppp_username = ?11,
		 ppp_password = ?12,
		 time_s = ?13,
		 time_ns = ?14
		 `, prof.Key, prof.ServiceID, prof.Name, userAPN, userUser, userPass, goodAPN, goodUser,
		goodPass, prof.AllowRoaming, prof.PPPUsername, prof.PPPPassword, tS, tNs)
	if err != nil {
		return fmt.Errorf("error saving profile %v: %w", prof.Key, err)
	}
	return nil
}

// Delete removes the profile stored under key
func (p *Profiles) Delete(key string) error {
	_, err := p.db.Exec("DELETE FROM profiles WHERE key=?", key)
	return err
}

// Keys returns the keys of all stored profiles
func (p *Profiles) Keys() ([]string, error) {
	rows, err := p.db.Query("SELECT key FROM profiles ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ret []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		ret = append(ret, k)
	}
	return ret, rows.Err()
}

// Close the db
func (p *Profiles) Close() error {
	return p.db.Close()
}
