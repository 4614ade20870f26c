// ABOUTME: Build identity constants
// ABOUTME: Shared by the CLI banner, the dev server and mDNS TXT records
package version

import "fmt"

const (
	// Version is the release version of the binaries.
	Version = "0.3.0"

	// Product is the product name announced in handshakes and mDNS.
	Product = "Vocalis"

	// Manufacturer identifies the project.
	Manufacturer = "Vocalis Audio"
)

// String returns the product banner, e.g. "Vocalis 0.3.0".
func String() string {
	return fmt.Sprintf("%s %s", Product, Version)
}
