package vmem

// OS returns the Mapper backed by the running platform's virtual memory system
func OS() Mapper {
	return osMapper{}
}
