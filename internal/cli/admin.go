package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/domain"
	"github.com/spf13/cobra"
)

// adminClient talks to the access management API of a running server.
type adminClient struct {
	base   string
	secret string
	http   *http.Client
}

func newAdminClient(base, secret string) *adminClient {
	return &adminClient{
		base:   strings.TrimRight(base, "/"),
		secret: secret,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status int
	Code   string
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Code)
}

func (c *adminClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("X-IM-Token", c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Code: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *adminClient) listACL(ctx context.Context) ([]domain.ACLEntry, error) {
	var out struct {
		Items []domain.ACLEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/api/agent/acl", nil, &out)
	return out.Items, err
}

func (c *adminClient) addACL(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, "/api/agent/acl/add", map[string]string{"phone": phone}, nil)
}

func (c *adminClient) removeACL(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodDelete, "/api/agent/acl/"+phone, nil, nil)
}

func (c *adminClient) listTokens(ctx context.Context) ([]domain.AgentToken, error) {
	var out struct {
		Items []domain.AgentToken `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/api/agent/tokens", nil, &out)
	return out.Items, err
}

func (c *adminClient) createToken(ctx context.Context, name string) (domain.AgentToken, error) {
	var tok domain.AgentToken
	err := c.do(ctx, http.MethodPost, "/api/agent/tokens", map[string]string{"name": name}, &tok)
	return tok, err
}

func (c *adminClient) revokeToken(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/agent/tokens/"+strconv.FormatInt(id, 10), nil, nil)
}

func defaultServerURL(cfg config.Config) string {
	scheme := "http"
	if cfg.Gateway.TLS.Enabled {
		scheme = "https"
	}
	host := "127.0.0.1"
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost != "" && cfg.Gateway.CustomBindHost != "0.0.0.0" {
		host = cfg.Gateway.CustomBindHost
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, cfg.Gateway.Port)
}

type adminFlags struct {
	server string
	secret string
}

// client builds an adminClient, filling unset flags from the config file.
func (f *adminFlags) client() (*adminClient, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	server, secret := f.server, f.secret
	if server == "" {
		server = defaultServerURL(cfg)
	}
	if secret == "" {
		secret = cfg.Gateway.SharedSecret
	}
	if secret == "" {
		return nil, fmt.Errorf("a shared secret is required for admin commands (set gateway.sharedSecret or pass --secret)")
	}
	return newAdminClient(server, secret), nil
}

func newAdminCmd() *cobra.Command {
	var f adminFlags
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage agent access on a running server",
	}
	cmd.PersistentFlags().StringVar(&f.server, "server", "", "server base URL (default from config)")
	cmd.PersistentFlags().StringVar(&f.secret, "secret", "", "shared secret (default from config)")

	cmd.AddCommand(newAdminACLCmd(&f))
	cmd.AddCommand(newAdminTokensCmd(&f))
	return cmd
}

func newAdminACLCmd(f *adminFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acl",
		Short: "Threads agents may join when agentAllowAll is off",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List allowed threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			items, err := c.listACL(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PHONE\tADDED")
			for _, e := range items {
				fmt.Fprintf(w, "%s\t%s\n", e.Phone, formatMillis(e.CreatedAt))
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <phone>",
		Short: "Allow agents to join a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			if err := c.addACL(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <phone>",
		Short: "Revoke agent access to a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			if err := c.removeACL(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func newAdminTokensCmd(f *adminFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Issued agent tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List agent tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			items, err := c.listTokens(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCREATED\tREVOKED")
			for _, t := range items {
				revoked := "-"
				if t.RevokedAt > 0 {
					revoked = formatMillis(t.RevokedAt)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.Name, formatMillis(t.CreatedAt), revoked)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create [name]",
		Short: "Issue a new agent token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			tok, err := c.createToken(cmd.Context(), name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token %d (%s):\n%s\n", tok.ID, tok.Name, tok.Token)
			fmt.Fprintln(cmd.ErrOrStderr(), "Store it now; it is not shown again.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an agent token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token id %q", args[0])
			}
			c, err := f.client()
			if err != nil {
				return err
			}
			if err := c.revokeToken(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d\n", id)
			return nil
		},
	})
	return cmd
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format(time.DateTime)
}
