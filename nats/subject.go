package nats

import (
	"errors"
	"strings"
)

// subject strings for the cellular API

// SubjectDevices is the request subject listing all devices
const SubjectDevices = "cellular.devices"

// SubjectState is where snapshots of a device are published
func SubjectState(device string) string {
	return "cellular." + device + ".state"
}

// SubjectRequest is the request subject for op on device
func SubjectRequest(device, op string) string {
	return "cellular." + device + ".req." + op
}

// SubjectAllRequests matches every device request
func SubjectAllRequests() string {
	return "cellular.*.req.*"
}

// decodeRequestSubject returns the device and op of a request subject
func decodeRequestSubject(subject string) (string, string, error) {
	chunks := strings.Split(subject, ".")
	if len(chunks) != 4 || chunks[0] != "cellular" || chunks[2] != "req" {
		return "", "", errors.New("error decoding request subject")
	}
	return chunks[1], chunks[3], nil
}
