package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/tenantgate/pkg/cache"
	"github.com/rhuss/tenantgate/pkg/config"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/storage/memory"
)

// errRejected makes the command exit non-zero when the authenticator
// answered with ok=false.
var errRejected = errors.New("authentication rejected")

type tryOptions struct {
	file          string
	tenant        string
	headers       []string
	query         []string
	body          string
	ip            string
	path          string
	scriptTimeout time.Duration
	httpTimeout   time.Duration
}

func tryCmd() *cobra.Command {
	opts := tryOptions{}

	cmd := &cobra.Command{
		Use:   "try",
		Short: "Run one authenticator against a sample request",
		Long: `Run one authenticator definition locally against a sample request and
print the normalized result as JSON. The command exits with status 1 when
the authenticator rejects the request.

Examples:
  # Try a script authenticator with an API key
  tenantgate try -f authn.yaml -H "Authorization=Bearer key-123"

  # Try an HTTP authenticator for another organization with a JSON body
  tenantgate try -f webhook.yaml --tenant acme -q token=abc --body '{"user":"u1"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTry(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Authenticator definition (YAML)")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "Organization id (overrides organization_id in the file)")
	cmd.Flags().StringArrayVarP(&opts.headers, "header", "H", nil, "Request header as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.query, "query", "q", nil, "Query parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.body, "body", "", "JSON request body")
	cmd.Flags().StringVar(&opts.ip, "ip", "127.0.0.1", "Client IP exposed to the authenticator")
	cmd.Flags().StringVar(&opts.path, "path", "/test", "Request path exposed to the authenticator")
	cmd.Flags().DurationVar(&opts.scriptTimeout, "script-timeout", 5*time.Second, "Script execution budget")
	cmd.Flags().DurationVar(&opts.httpTimeout, "http-timeout", 10*time.Second, "Outbound HTTP call timeout")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runTry(ctx context.Context, opts tryOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadAuthenticatorSeed(opts.file, opts.tenant)
	if err != nil {
		return fmt.Errorf("loading %s: %w", opts.file, err)
	}

	headers, err := parsePairs(opts.headers)
	if err != nil {
		return fmt.Errorf("--header: %w", err)
	}
	query, err := parsePairs(opts.query)
	if err != nil {
		return fmt.Errorf("--query: %w", err)
	}
	var body any
	if opts.body != "" {
		if err := json.Unmarshal([]byte(opts.body), &body); err != nil {
			return fmt.Errorf("--body: invalid JSON: %w", err)
		}
	}

	defaults := config.Defaults()
	dyn := defaults.DynAuth
	dyn.ScriptTimeout = opts.scriptTimeout
	dyn.HTTPTimeout = opts.httpTimeout

	d, err := dynauth.New(memory.New(), cache.Noop{}, dynauth.Config{
		CredentialHeaders: dyn.CredentialHeaders,
		Executors:         newExecutors(dyn),
	})
	if err != nil {
		return err
	}

	rc := dynauth.NewRequestContext(cfg.TenantID, headers, query, body)
	rc.IP = opts.ip
	rc.Path = opts.path

	result, err := d.Try(ctx, cfg, rc)
	if err != nil {
		return fmt.Errorf("running authenticator %s: %w", cfg.Name, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.OK {
		return errRejected
	}
	return nil
}

// parsePairs splits name=value arguments.
func parsePairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%q is not name=value", a)
		}
		out[name] = value
	}
	return out, nil
}
