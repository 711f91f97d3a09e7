//go:build !linux

package fontcheck

// systemFont is not implemented outside Linux; the embedded face is used.
func systemFont() string { return "" }
