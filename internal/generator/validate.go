package generator

import (
	"errors"
	"regexp"
)

var (
	identRegexp      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	tokenRegexp      = regexp.MustCompile(`^[a-zA-Z0-9]*$`)
	serverHostRegexp = regexp.MustCompile(`^(ws|wss)://[a-zA-Z0-9_\-.:]+/*$`)
	handlerRegexp    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]+$`)
)

// ValidateDeviceName checks a deviceName answer.
func ValidateDeviceName(s string) error {
	if !identRegexp.MatchString(s) {
		return errors.New("available characters for deviceName: A-Z, a-z, 0-9, underscore, hyphen")
	}
	return nil
}

// ValidateDeviceType checks a deviceType answer.
func ValidateDeviceType(s string) error {
	if !identRegexp.MatchString(s) {
		return errors.New("available characters for deviceType: A-Z, a-z, 0-9, underscore, hyphen")
	}
	return nil
}

// ValidateDeviceToken checks a deviceToken answer. It may be empty when the
// token has not been issued yet.
func ValidateDeviceToken(s string) error {
	if !tokenRegexp.MatchString(s) {
		return errors.New("deviceToken must be alphanumeric")
	}
	return nil
}

// ValidateServerHost checks a denhubServerHost answer.
func ValidateServerHost(s string) error {
	if !serverHostRegexp.MatchString(s) {
		return errors.New("denhubServerHost must look like wss://example.com/")
	}
	return nil
}

// ValidateHandlerName checks that a command can get a generated handler.
func ValidateHandlerName(s string) error {
	if !handlerRegexp.MatchString(s) {
		return errors.New("command name must start with a letter and contain only letters and digits")
	}
	return nil
}
