package structs

import "time"

type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
	DeviceWeb     Device = "web"
)

type Presence struct {
	UserID       Snowflake  `json:"user_id"`
	Status       Status     `json:"status"`
	CustomStatus *string    `json:"custom_status"`
	Devices      int        `json:"devices"`
	OnlineSince  *time.Time `json:"online_since"`
}
