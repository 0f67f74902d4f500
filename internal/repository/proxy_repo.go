package repository

// ProxyStore persists the flat proxy address list.
type ProxyStore interface {
	Load() ([]string, error)
	// Append adds addresses not already present, preserving existing order.
	Append(addrs ...string) ([]string, error)
	// Remove filters addresses out in place, preserving the order of the rest.
	Remove(addrs ...string) ([]string, error)
}
