package ir

// FormatVersion is the version of the descriptor structure hashed into
// fingerprints.
const FormatVersion = "1"
