// Package store persists cellular service profiles in SQLite. A profile is
// keyed by the subscriber identity so a service keeps its APN choices and
// roaming policy when its modem reappears on a new bus path.
package store
