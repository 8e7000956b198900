package credstore

// Wire types for the credential-store backend API.

type fetchResponse struct {
	Credentials map[string]string `json:"credentials"`
}

type clearRequest struct {
	ClientID       string   `json:"clientId"`
	ExperienceName string   `json:"experienceName"`
	Kinds          []string `json:"kinds"`
}

type clearResponse struct {
	Removed []string `json:"removed"`
}

// missingResponse distinguishes "nothing is missing, requirements satisfied"
// (JSON null) from "these kinds are missing" (a list). The pointer carries
// that distinction through decoding.
type missingResponse struct {
	Missing *[]string `json:"missing"`
}

type serialResponse struct {
	SerialNumber string `json:"serialNumber"`
}

type updateRequest struct {
	ClientID          string            `json:"clientId"`
	ExperienceName    string            `json:"experienceName"`
	Credentials       map[string]string `json:"credentials"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	UserCredentialIDs []string          `json:"userCredentialIds,omitempty"`
}

type storeErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
