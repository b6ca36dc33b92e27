package utils

import (
	"os"
	"time"
)

// GetStringEnvVar returns a string environment variable.
// If variable is not set returns the default value
func GetStringEnvVar(envVar string, defaultValue string) string {
	name := os.Getenv(envVar)
	if name == "" {
		return defaultValue
	}
	return name
}

// GetDurationEnvVar returns a duration environment variable (e.g. "1500ms").
// If variable is not set or invalid value, returns the default value
func GetDurationEnvVar(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}
