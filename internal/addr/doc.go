// Package addr implements the segmented real-mode address type shared
// by every backend and client: parsing of "SSSS:OOOO" and linear
// literals, canonical linear conversion, and formatting. There is no
// third-party parsing library in the example pack for 16-bit segmented
// addressing, so this package is deliberately stdlib-only (strconv);
// see DESIGN.md for the justification.
package addr
