package apiclient

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/supersquad/eventsweb/internal/domain/events"
)

// MsgLoginFailed is used when the API rejects a login without a message.
const MsgLoginFailed = "Login failed"

// LoginResult is the body of a successful POST /login.
type LoginResult struct {
	Token string       `json:"token"`
	User  *events.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. A rejected login is
// ErrAuthentication carrying the server message, or MsgLoginFailed.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	resp, err := c.do(ctx, request{
		operation: "login",
		method:    http.MethodPost,
		path:      "/login",
		body:      loginRequest{Email: email, Password: password},
	})
	if err != nil {
		record("login", err)
		return LoginResult{}, err
	}
	if !resp.ok() {
		msg := serverMessage(resp.body)
		if msg == "" {
			msg = MsgLoginFailed
		}
		apiErr := &Error{Kind: ErrAuthentication, Status: resp.status, Message: msg}
		record("login", apiErr)
		return LoginResult{}, apiErr
	}

	var result LoginResult
	if err := json.Unmarshal(resp.body, &result); err != nil || result.Token == "" {
		apiErr := &Error{Kind: ErrAuthentication, Status: resp.status, Message: MsgLoginFailed, Err: err}
		record("login", apiErr)
		return LoginResult{}, apiErr
	}
	record("login", nil)
	return result, nil
}
