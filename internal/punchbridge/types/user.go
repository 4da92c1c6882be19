package types

// UserMapping binds a canonical device id to an entity in the remote
// directory. DisplayName and ShiftTiming are informational only.
type UserMapping struct {
	DeviceID    string
	CloudID     string
	DisplayName string
	ShiftTiming string
}
