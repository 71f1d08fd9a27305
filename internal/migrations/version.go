package migrations

import "fmt"

// Version identifies a catalog schema version as a (major, minor) pair.
// Versions are totally ordered by major first, then minor. The same type
// doubles as a migration identifier and as a database's progress marker.
type Version struct {
	Major int
	Minor int
}

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
