package clients

import (
	"context"
	"fmt"
	"net/http"
)

// User is the downstream user service's user representation
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserClient wraps the client for the user service
type UserClient struct {
	baseClient
}

// GetUser fetches a user by ID
func (c *UserClient) GetUser(ctx context.Context, userID string) (*User, error) {
	var resp struct {
		serviceResponse
		User User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+userID, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("user not found or error: %s", resp.Message)
	}
	return &resp.User, nil
}

// DeleteUser deletes the user record. Idempotent: deleting a missing user
// reports success.
func (c *UserClient) DeleteUser(ctx context.Context, userID string) error {
	var resp serviceResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/users/"+userID, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("failed to delete user %s: %s", userID, resp.Message)
	}
	return nil
}
