package models

import "time"

type Device struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	Name       string    `json:"name"`
	IPAddress  string    `json:"ip_address"`
	DeviceType string    `json:"device_type"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type DevicePrinter struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	PrinterID   string    `json:"printer_id"`
	PrinterName string    `json:"printer_name"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	DeviceDisplay     = "display"
	DeviceCustomer    = "customer"
	DeviceWindow      = "window"
	DeviceAdmin       = "admin"
	DevicePrinterType = "printer"
)

const (
	DeviceOnline  = "online"
	DeviceOffline = "offline"
	DeviceError   = "error"
)

func ValidDeviceType(deviceType string) bool {
	switch deviceType {
	case DeviceDisplay, DeviceCustomer, DeviceWindow, DeviceAdmin, DevicePrinterType:
		return true
	default:
		return false
	}
}

func ValidDeviceStatus(status string) bool {
	switch status {
	case DeviceOnline, DeviceOffline, DeviceError:
		return true
	default:
		return false
	}
}
