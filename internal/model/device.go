package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DeviceStore defines persistence operations for devices.
type DeviceStore interface {
	// Upsert inserts the device or, when (user, fingerprint hash) already
	// exists, refreshes its name, last seen time and address. The flag is
	// true when a new row was inserted.
	Upsert(ctx context.Context, device Device) (Device, bool, error)
	GetByID(ctx context.Context, userID, deviceID uuid.UUID) (Device, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Device, error)
	UpdateName(ctx context.Context, userID, deviceID uuid.UUID, name string, now time.Time) (Device, error)
	SetTrusted(ctx context.Context, userID, deviceID uuid.UUID, now time.Time) (Device, error)
	Delete(ctx context.Context, userID, deviceID uuid.UUID) error
}

// Platform is the client platform a device runs on.
type Platform string

const (
	PlatformWeb            Platform = "web"
	PlatformDesktopWindows Platform = "desktop-windows"
	PlatformDesktopMacOS   Platform = "desktop-macos"
	PlatformDesktopLinux   Platform = "desktop-linux"
	PlatformIOS            Platform = "ios"
	PlatformAndroid        Platform = "android"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWeb, PlatformDesktopWindows, PlatformDesktopMacOS, PlatformDesktopLinux, PlatformIOS, PlatformAndroid:
		return true
	}
	return false
}

// Device is a client installation bound to a user.
type Device struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Name            string
	Platform        Platform
	FingerprintHash string
	Trusted         bool
	LastSeenAt      time.Time
	LastIPAddress   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DeviceDescriptor is what a client declares about itself on login.
type DeviceDescriptor struct {
	Identifier string
	Name       string
	Platform   Platform
}
