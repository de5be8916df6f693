package data

import "time"

// Identity is the subscriber identity a service profile is stored under.
// The first non-empty of IMSI, MEID and ICCID is used as the key so a
// service can be re-attached when the same modem shows up on a new path.
type Identity struct {
	IMSI  string
	MEID  string
	ICCID string
}

// Key returns the storage key, empty if no identifier is known
func (i Identity) Key() string {
	switch {
	case i.IMSI != "":
		return "imsi:" + i.IMSI
	case i.MEID != "":
		return "meid:" + i.MEID
	case i.ICCID != "":
		return "iccid:" + i.ICCID
	}
	return ""
}

// Profile holds the persistent settings of a cellular service
type Profile struct {
	Key          string    `json:"key"`
	ServiceID    string    `json:"serviceId"`
	Name         string    `json:"name"`
	UserAPN      *APN      `json:"userApn,omitempty"`
	LastGoodAPN  *APN      `json:"lastGoodApn,omitempty"`
	AllowRoaming bool      `json:"allowRoaming"`
	PPPUsername  string    `json:"pppUsername,omitempty"`
	PPPPassword  string    `json:"pppPassword,omitempty"`
	Updated      time.Time `json:"updated"`
}
