// ABOUTME: Shared mesh timing and capacity constants
// ABOUTME: Star topology limits matched across coordinator and client roles
package mesh

import "time"

const (
	// MaxDevices caps the coordinator's membership table. The topology is a
	// fixed star: one coordinator, up to four clients.
	MaxDevices = 4

	// HeartbeatInterval is how often the coordinator beacons liveness.
	HeartbeatInterval = 5 * time.Second

	// StatusInterval is how often the coordinator broadcasts a membership
	// summary.
	StatusInterval = 5 * time.Second

	// DeviceTimeout declares a silent peer dead. Both roles use the same
	// value so eviction and reconnection agree.
	DeviceTimeout = 30 * time.Second

	// SweepInterval is how often the coordinator scans for timed-out
	// devices. Half the timeout keeps worst-case detection under
	// 1.5*DeviceTimeout.
	SweepInterval = DeviceTimeout / 2

	// JoinRetryInterval spaces a client's join attempts.
	JoinRetryInterval = 15 * time.Second

	// MaxJoinAttempts bounds automatic rejoin; past it the client parks in
	// a failed state that needs external intervention.
	MaxJoinAttempts = 10
)
