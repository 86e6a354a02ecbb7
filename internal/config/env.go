// Package config reads environment settings shared by the blink commands.
// Flags override everything here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults used when the environment is silent.
const (
	DefaultResDir     = "./res"
	DefaultLogDir     = "./log"
	DefaultDashboard  = ":8181"
	DefaultPostgresDB = "blink"
)

// Cascade file names inside the resource directory.
const (
	FaceCascadeFile = "haarcascade_frontalface_alt.xml"
	EyeCascadeFile  = "haarcascade_eye_tree_eyeglasses.xml"
)

// Camera returns the camera index from BLINK_CAMERA, or def.
func Camera(def int) int {
	return Int("BLINK_CAMERA", def)
}

// ResDir returns the cascade directory from BLINK_RES_DIR.
func ResDir() string {
	return String("BLINK_RES_DIR", DefaultResDir)
}

// FaceCascade returns the face cascade path inside ResDir.
func FaceCascade() string {
	return filepath.Join(ResDir(), FaceCascadeFile)
}

// EyeCascade returns the eye cascade path inside ResDir.
func EyeCascade() string {
	return filepath.Join(ResDir(), EyeCascadeFile)
}

// LogDir returns the session log root from BLINK_LOG_DIR.
func LogDir() string {
	return String("BLINK_LOG_DIR", DefaultLogDir)
}

// DashboardAddr returns the dashboard listen address from BLINK_ADDR.
func DashboardAddr() string {
	return String("BLINK_ADDR", DefaultDashboard)
}

// DatabaseURL returns DATABASE_URL, or a URL built from POSTGRES_HOST,
// POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB. Empty
// when neither is set; the archive is then disabled.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		String("POSTGRES_PORT", "5432"),
		String("POSTGRES_DB", DefaultPostgresDB))
}

// MQTTBroker returns MQTT_BROKER; empty disables telemetry.
func MQTTBroker() string {
	return os.Getenv("MQTT_BROKER")
}

// String returns the variable or def when unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the variable parsed as an int, or def when unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration returns the variable parsed with time.ParseDuration, or def.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
