package portal

import "time"

// Account is a signing authority service account for one team, resolved from
// AWS Secrets Manager at run start.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TeamID   string `json:"team_id"`
}

// AuthData is the authenticated portal session payload. It is held in memory
// for the lifetime of one signing run and never persisted.
type AuthData struct {
	SessionToken string    `json:"sessionToken"`
	TeamID       string    `json:"teamId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Session is the authentication context threaded through the credential steps
// of a run: the portal auth data plus the app identity it is scoped to.
type Session struct {
	AuthData         AuthData
	BundleIdentifier string
	Username         string
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TeamID   string `json:"teamId,omitempty"`
}

type registerAppRequest struct {
	Name             string `json:"name"`
	BundleIdentifier string `json:"bundleIdentifier"`
	TeamID           string `json:"teamId,omitempty"`
}

type revokeRequest struct {
	Kinds []string `json:"kinds"`
}

type generateRequest struct {
	Kinds    []string          `json:"kinds"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type generateResponse struct {
	Credentials map[string]string `json:"credentials"`
}

type portalErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
