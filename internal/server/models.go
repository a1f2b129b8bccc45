package server

// HTTPError is the unified error body returned by the API.
type HTTPError struct {
	Error string `json:"error"`
}

// IDResponse is returned by create endpoints.
type IDResponse struct {
	ID string `json:"id"`
}

// TokenResponse is returned by login.
type TokenResponse struct {
	Token string `json:"token"`
}

// AuthSignupRequest is the signup payload.
type AuthSignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	TeamName string `json:"team_name"`
}

// AuthLoginRequest is the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CompanyRequest creates or updates a target company.
type CompanyRequest struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// InitiativeRequest creates a research initiative under a company.
type InitiativeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PortfolioItemRequest creates a vendor portfolio entry.
type PortfolioItemRequest struct {
	VendorName       string   `json:"vendor_name"`
	PartnershipLevel string   `json:"partnership_level"`
	Capabilities     []string `json:"capabilities"`
}

// ResearchRequest starts a research session; FollowUpQuestion narrows
// a follow-up round on an already-researched initiative.
type ResearchRequest struct {
	FollowUpQuestion string `json:"follow_up_question"`
}
