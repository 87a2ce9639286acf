// Package openstack implements the cloud provider contract against the Keystone v3 API.
package openstack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pikacloud/backend/internal/cloud"
	"pikacloud/backend/internal/cloud/tokens"
)

// Name is the provider name used in configuration and routes.
const Name = "openstack"

const (
	keyAdminToken      = "openstack:admin-token"
	keyUserTokenPrefix = "openstack:user-token-"
	keyDefaultDomainID = "openstack:default-domain-id"
	keyMemberRoleID    = "openstack:member-role-id"

	headerAuthToken    = "X-Auth-Token"
	headerSubjectToken = "X-Subject-Token"

	memberRoleName = "member"
	maxBody        = 1 << 20
)

// Config configures the Keystone client.
type Config struct {
	KeystoneURL   string
	AdminUsername string
	AdminPassword string
	// Domain is the name of the domain users are created in and authenticate against.
	Domain  string
	Timeout time.Duration
}

// Client talks to Keystone. Tokens and reference ids are cached through the token manager.
type Client struct {
	baseURL       string
	adminUsername string
	adminPassword string
	domain        string
	http          *http.Client
	tokens        *tokens.Manager
	newPassword   func() string
}

// NewClient returns a Keystone client.
func NewClient(cfg Config, mgr *tokens.Manager) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	domain := cfg.Domain
	if domain == "" {
		domain = "Default"
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.KeystoneURL, "/"),
		adminUsername: cfg.AdminUsername,
		adminPassword: cfg.AdminPassword,
		domain:        domain,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:      mgr,
		newPassword: uuid.NewString,
	}
}

func (c *Client) Name() string { return Name }

// AdminToken returns the administrator token.
func (c *Client) AdminToken(ctx context.Context) (string, error) {
	return c.tokens.GetOrFetch(ctx, keyAdminToken, func(ctx context.Context) (tokens.Fetched, error) {
		return c.issueToken(ctx, c.adminUsername, c.adminPassword)
	})
}

// UserToken returns a token for the cloud user identified by username and password.
func (c *Client) UserToken(ctx context.Context, username, password string) (string, error) {
	return c.tokens.GetOrFetch(ctx, keyUserTokenPrefix+username, func(ctx context.Context) (tokens.Fetched, error) {
		return c.issueToken(ctx, username, password)
	})
}

// Warm refreshes the admin token and reads through the reference ids.
func (c *Client) Warm(ctx context.Context) error {
	if _, err := c.tokens.Refresh(ctx, keyAdminToken, func(ctx context.Context) (tokens.Fetched, error) {
		return c.issueToken(ctx, c.adminUsername, c.adminPassword)
	}); err != nil {
		return fmt.Errorf("admin token: %w", err)
	}
	if _, err := c.defaultDomainID(ctx); err != nil {
		return fmt.Errorf("default domain id: %w", err)
	}
	if _, err := c.memberRoleID(ctx); err != nil {
		return fmt.Errorf("member role id: %w", err)
	}
	return nil
}

type passwordAuthRequest struct {
	Auth struct {
		Identity struct {
			Methods  []string `json:"methods"`
			Password struct {
				User struct {
					Name   string `json:"name"`
					Domain struct {
						Name string `json:"name"`
					} `json:"domain"`
					Password string `json:"password"`
				} `json:"user"`
			} `json:"password"`
		} `json:"identity"`
	} `json:"auth"`
}

type tokenResponse struct {
	Token struct {
		ExpiresAt string `json:"expires_at"`
	} `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// issueToken performs POST /auth/tokens with password credentials.
func (c *Client) issueToken(ctx context.Context, username, password string) (tokens.Fetched, error) {
	var body passwordAuthRequest
	body.Auth.Identity.Methods = []string{"password"}
	body.Auth.Identity.Password.User.Name = username
	body.Auth.Identity.Password.User.Domain.Name = c.domain
	body.Auth.Identity.Password.User.Password = password

	resp, err := c.do(ctx, http.MethodPost, "/auth/tokens", "", body)
	if err != nil {
		return tokens.Fetched{}, err
	}
	defer resp.Body.Close()

	token := resp.Header.Get(headerSubjectToken)
	if token == "" {
		return tokens.Fetched{}, fmt.Errorf("%w: %s header", cloud.ErrNotFound, headerSubjectToken)
	}
	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&tr); err != nil {
		return tokens.Fetched{}, fmt.Errorf("%w: token body: %v", cloud.ErrNotFound, err)
	}
	raw := tr.Token.ExpiresAt
	if raw == "" {
		raw = tr.ExpiresAt
	}
	if raw == "" {
		return tokens.Fetched{}, fmt.Errorf("%w: expires_at", cloud.ErrNotFound)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return tokens.Fetched{}, fmt.Errorf("%w: expires_at %q", cloud.ErrNotFound, raw)
	}
	return tokens.Fetched{Value: token, ExpiresAt: expiresAt}, nil
}

type namedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) defaultDomainID(ctx context.Context) (string, error) {
	return c.tokens.GetOrFetch(ctx, keyDefaultDomainID, func(ctx context.Context) (tokens.Fetched, error) {
		var out struct {
			Domains []namedEntity `json:"domains"`
		}
		if err := c.adminGetJSON(ctx, "/domains", &out); err != nil {
			return tokens.Fetched{}, err
		}
		return findByName(out.Domains, c.domain, "domain")
	})
}

func (c *Client) memberRoleID(ctx context.Context) (string, error) {
	return c.tokens.GetOrFetch(ctx, keyMemberRoleID, func(ctx context.Context) (tokens.Fetched, error) {
		var out struct {
			Roles []namedEntity `json:"roles"`
		}
		if err := c.adminGetJSON(ctx, "/roles", &out); err != nil {
			return tokens.Fetched{}, err
		}
		return findByName(out.Roles, memberRoleName, "role")
	})
}

func findByName(items []namedEntity, name, kind string) (tokens.Fetched, error) {
	for _, it := range items {
		if it.Name == name && it.ID != "" {
			return tokens.Fetched{Value: it.ID}, nil
		}
	}
	return tokens.Fetched{}, fmt.Errorf("%w: %s %q", cloud.ErrNotFound, kind, name)
}

// CreateUser creates a project named after username, a user with a random password whose
// default project is that project, and grants the member role on the domain.
func (c *Client) CreateUser(ctx context.Context, username string) (*cloud.Account, error) {
	admin, err := c.AdminToken(ctx)
	if err != nil {
		return nil, err
	}
	domainID, err := c.defaultDomainID(ctx)
	if err != nil {
		return nil, err
	}
	roleID, err := c.memberRoleID(ctx)
	if err != nil {
		return nil, err
	}

	var project struct {
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
	}
	projectReq := map[string]any{"project": map[string]any{"name": username, "domain_id": domainID}}
	if err := c.sendJSON(ctx, http.MethodPost, "/projects", admin, projectReq, &project); err != nil {
		return nil, err
	}
	if project.Project.ID == "" {
		return nil, fmt.Errorf("%w: project id", cloud.ErrNotFound)
	}

	password := c.newPassword()
	var user struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	userReq := map[string]any{"user": map[string]any{
		"name":               username,
		"password":           password,
		"domain_id":          domainID,
		"default_project_id": project.Project.ID,
	}}
	if err := c.sendJSON(ctx, http.MethodPost, "/users", admin, userReq, &user); err != nil {
		return nil, err
	}
	if user.User.ID == "" {
		slog.ErrorContext(ctx, "openstack: user created without id", "username", username)
		return nil, fmt.Errorf("%w: user id", cloud.ErrNotFound)
	}

	grant := "/domains/" + url.PathEscape(domainID) + "/users/" + url.PathEscape(user.User.ID) + "/roles/" + url.PathEscape(roleID)
	if err := c.sendJSON(ctx, http.MethodPut, grant, admin, nil, nil); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "openstack: user created", "cloud_user_id", user.User.ID, "project_id", project.Project.ID)
	return &cloud.Account{UserID: user.User.ID, Username: username, Password: password}, nil
}

// DeleteUser deletes the cloud user with the given id.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	admin, err := c.AdminToken(ctx)
	if err != nil {
		return err
	}
	return c.sendJSON(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), admin, nil, nil)
}

// UserExists reports whether GET /users/{id} succeeds. Transport failures are errors.
func (c *Client) UserExists(ctx context.Context, userID string) (bool, error) {
	admin, err := c.AdminToken(ctx)
	if err != nil {
		return false, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), admin, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", cloud.ErrSendRequest, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	return resp.StatusCode >= 200 && resp.StatusCode <= 299, nil
}

func (c *Client) adminGetJSON(ctx context.Context, path string, out any) error {
	admin, err := c.AdminToken(ctx)
	if err != nil {
		return err
	}
	return c.sendJSON(ctx, http.MethodGet, path, admin, nil, out)
}

// sendJSON performs a request and decodes a 2xx body into out when out is non-nil.
func (c *Client) sendJSON(ctx context.Context, method, path, token string, in, out any) error {
	resp, err := c.do(ctx, method, path, token, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", cloud.ErrSendRequest, method, path, err)
	}
	return nil
}

// do sends the request and fails on transport errors and non-2xx statuses.
func (c *Client) do(ctx context.Context, method, path, token string, in any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, token, in)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", cloud.ErrSendRequest, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: status %d", cloud.ErrSendRequest, method, path, resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cloud.ErrSendRequest, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set(headerAuthToken, token)
	}
	return req, nil
}
