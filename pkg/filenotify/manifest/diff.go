package manifest

// Diff returns the entries of next that are new or whose stamp differs from
// prev. Entries present only in prev are deletions and are never reported.
func Diff(prev, next Manifest) Manifest {
	delta := Manifest{}
	for name, stamp := range next {
		if old, ok := prev[name]; !ok || old != stamp {
			delta[name] = stamp
		}
	}
	return delta
}
