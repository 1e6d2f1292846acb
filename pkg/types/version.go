package types

// VersionEndOpen is the valid_end sentinel for the current row of a
// versioned type: the row is visible from its valid_start onward until a
// later write closes the range.
const VersionEndOpen int64 = 9223372036854775807

// Change operations recorded in the audit log.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
	ChangeSquash = "squash"
)

// VersionInfo describes one write operation for the audit log. Version and
// At are assigned by the engine; the remaining fields come from the caller
// and are immutable once written.
type VersionInfo struct {
	Version int64  `json:"version"`
	Who     string `json:"who,omitempty"`
	Where   string `json:"where,omitempty"`
	Why     string `json:"why,omitempty"`
	Tag     string `json:"tag,omitempty"`
	At      string `json:"at"` // RFC3339
	Revert  bool   `json:"revert,omitempty"`
}

// VersionStamp is one entry of an identity's version history: the validity
// range of a row joined with the audit fields of the write that created it.
type VersionStamp struct {
	Version    int64  `json:"version"`
	ValidStart int64  `json:"valid_start"`
	ValidEnd   int64  `json:"valid_end"`
	Current    bool   `json:"current"`
	Who        string `json:"who,omitempty"`
	Why        string `json:"why,omitempty"`
	Tag        string `json:"tag,omitempty"`
	At         string `json:"at"`
}
