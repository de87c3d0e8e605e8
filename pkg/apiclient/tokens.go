package apiclient

import "time"

// IssueTokenRequest is the body of POST /v1/tokens.
type IssueTokenRequest struct {
	Token   string `json:"token"`
	Subject string `json:"subject,omitempty"`
}

// TokenResponse is the session token returned by POST /v1/tokens.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresIn int64     `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiresInDuration returns ExpiresIn as a time.Duration.
func (t *TokenResponse) ExpiresInDuration() time.Duration {
	return time.Duration(t.ExpiresIn) * time.Second
}

// IssueToken exchanges a static operator token for a short-lived session
// token. The subject is optional and only labels the issued claims.
func (c *Client) IssueToken(staticToken, subject string) (*TokenResponse, error) {
	req := IssueTokenRequest{
		Token:   staticToken,
		Subject: subject,
	}

	var resp TokenResponse
	if err := c.post("/v1/tokens", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
