package oauthmodel

// Owner type markers in resource_infos entries.
const (
	OwnerTypeUser  = "User"
	OwnerTypeGroup = "Group"
)

// Creator id markers. "U" alone means the owning user; otherwise the marker
// prefixes the numeric id (e.g. "U123", "G456").
const (
	CreatorOwnerUser   = "U"
	CreatorUserPrefix  = "U"
	CreatorGroupPrefix = "G"
)

// ResourcesResponse is the body of the token resources endpoint.
// Lists the accounts and experiences the user actually granted.
type ResourcesResponse struct {
	ResourceInfos []ResourceInfo `json:"resource_infos"`
}

// ResourceInfo groups the resources granted under one owner.
type ResourceInfo struct {
	Owner     ResourceOwner `json:"owner"`
	Resources ResourceSet   `json:"resources"`
}

// ResourceOwner is the user or group owning the granted resources.
type ResourceOwner struct {
	// ID is the numeric user or group id as a string.
	ID string `json:"id"`

	// Type is either "User" or "Group".
	Type string `json:"type"`
}

// ResourceSet holds the ids granted per resource kind.
type ResourceSet struct {
	// Universe lists granted experience (universe) ids.
	Universe *ResourceIDs `json:"universe,omitempty"`

	// Creator lists granted creator accounts using U/G markers.
	Creator *ResourceIDs `json:"creator,omitempty"`
}

// ResourceIDs is a list of opaque ids.
type ResourceIDs struct {
	IDs []string `json:"ids"`
}
