// Package system holds host level helpers: syslog output, the OS release
// and clock synchronization once a data connection is up.
package system

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/blang/semver/v4"
)

// ReleaseFile is where the OS release is read from
var ReleaseFile = "/etc/os-release"

// ReadOSVersion reads field (usually VERSION_ID) from ReleaseFile
func ReadOSVersion(field string) (semver.Version, error) {
	buf, err := os.ReadFile(ReleaseFile)
	if err != nil {
		return semver.Version{}, err
	}
	return parseVersion(buf, field)
}

func parseVersion(releaseFile []byte, field string) (semver.Version, error) {
	// matches VERSION_ID=1.2 as well as VERSION_ID="1.2.3"
	re, err := regexp.Compile(regexp.QuoteMeta(field) + `=['"]?([^'"\s]*)`)
	if err != nil {
		return semver.Version{}, err
	}
	m := re.FindSubmatch(releaseFile)
	if m == nil {
		return semver.Version{}, errors.New(field + " not found in release file")
	}
	v, err := semver.ParseTolerant(string(m[1]))
	if err != nil {
		return semver.Version{}, fmt.Errorf("error parsing %v: %w", field, err)
	}
	return v, nil
}
