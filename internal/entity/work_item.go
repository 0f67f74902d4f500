package entity

// WorkItem is one (keyword, platform) unit of search work.
type WorkItem struct {
	Keyword  string
	Platform PlatformID
}
