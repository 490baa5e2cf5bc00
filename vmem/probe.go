package vmem

// Querier is the part of Mapper that answers region queries
type Querier interface {
	QueryRegion(addr uintptr) (RegionInfo, error)
}

// IsExecutable reports whether addr lies in committed memory whose protection allows instruction
// fetch. A failed query reports false.
func IsExecutable(q Querier, addr uintptr) bool {
	info, err := q.QueryRegion(addr)
	if err != nil {
		return false
	}

	return info.State == StateCommitted && info.Protect.IsExecutable()
}
