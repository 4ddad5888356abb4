package dispatchmodel

import "strings"

// ToolManifest describes a single dispatchable tool.
type ToolManifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Entry       string   `json:"entry"`
	Permissions []string `json:"permissions,omitempty"`
	Description string   `json:"description,omitempty"`
}

// EntryScheme identifies which runtime a manifest's entry routes to.
type EntryScheme string

const (
	EntryWasm    EntryScheme = "wasm"
	EntryNative  EntryScheme = "native"
	EntryUnknown EntryScheme = ""
)

// Scheme parses the manifest's Entry into a scheme and the remainder
// (path for wasm://, token for native://).
func (m ToolManifest) Scheme() (EntryScheme, string) {
	switch {
	case strings.HasPrefix(m.Entry, "wasm://"):
		return EntryWasm, strings.TrimPrefix(m.Entry, "wasm://")
	case strings.HasPrefix(m.Entry, "native://"):
		return EntryNative, strings.TrimPrefix(m.Entry, "native://")
	default:
		return EntryUnknown, m.Entry
	}
}
