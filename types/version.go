package types

// Version is the canonical project version.
// The CLI and published install events share this version.
const Version = "0.1.0"
