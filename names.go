package zexplorer

import (
	"path"
	"strconv"
	"strings"
)

// MemberNameLen is the maximum length of a PDS member name
const MemberNameLen = 8

// MemberName is the member a file named name becomes inside a PDS: upper
// case, extension stripped, truncated to eight characters
func MemberName(name string) string {
	n := strings.ToUpper(strings.TrimSuffix(name, path.Ext(name)))
	if len(n) > MemberNameLen {
		n = n[:MemberNameLen]
	}
	return n
}

// SuffixedName returns the n-th alternative of name. Members get trailing
// digits within eight characters, everything else "base_(n).ext".
func SuffixedName(name string, n int, member bool) string {
	d := strconv.Itoa(n)
	if member {
		base := strings.TrimRight(name, "0123456789")
		if len(base)+len(d) > MemberNameLen {
			base = base[:max(MemberNameLen-len(d), 0)]
		}
		return base + d
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + "_(" + d + ")" + ext
}
