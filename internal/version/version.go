// ABOUTME: Build identity constants for the wavemesh binaries
// ABOUTME: Reported at startup by every role
package version

const (
	// Version is overridden at release time via -ldflags.
	Version = "0.1.0"

	Product      = "wavemesh"
	Manufacturer = "WaveMesh"
)
