package main

import (
	"errors"
	"os"
	"strings"
)

// FormatUserError rewrites common low-level failures into actionable
// messages before they reach stderr.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case errors.Is(err, os.ErrPermission) || strings.Contains(msg, "operation not permitted"):
		return msg + "\nHint: raw HCI scanning usually needs root or CAP_NET_ADMIN"
	case strings.Contains(msg, "no such device") || strings.Contains(msg, "can't init device"):
		return msg + "\nHint: check that a Bluetooth adapter is present and powered on"
	default:
		return msg
	}
}
