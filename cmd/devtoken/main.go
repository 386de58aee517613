// Package main is a developer utility for running the API locally. mint signs
// a session token with the same secret the server validates (PA_JWT_SECRET),
// and smoke calls an authenticated endpoint with such a token to confirm a
// freshly started server answers.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/propaudit/propaudit/internal/api"
	"github.com/propaudit/propaudit/internal/auth"
)

type tokenFlags struct {
	tenant string
	user   string
	email  string
	issuer string
	ttl    time.Duration
}

func (f *tokenFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant uuid carried by the token (required)")
	cmd.Flags().StringVar(&f.user, "user", "", "user uuid carried by the token (required)")
	cmd.Flags().StringVar(&f.email, "email", "", "optional email claim")
	cmd.Flags().StringVar(&f.issuer, "issuer", auth.DefaultIssuer, "token issuer, must match auth.issuer on the server")
	cmd.Flags().DurationVar(&f.ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")
}

func (f *tokenFlags) mint() (string, error) {
	if strings.TrimSpace(f.tenant) == "" || strings.TrimSpace(f.user) == "" {
		return "", fmt.Errorf("--tenant and --user must not be blank")
	}
	for _, id := range [][2]string{{"--tenant", f.tenant}, {"--user", f.user}} {
		if _, err := uuid.Parse(id[1]); err != nil || len(id[1]) != 36 {
			return "", fmt.Errorf("%s must be a uuid, got %q", id[0], id[1])
		}
	}
	if f.ttl <= 0 {
		return "", fmt.Errorf("--ttl must be positive")
	}
	if os.Getenv("PA_JWT_SECRET") == "" {
		return "", fmt.Errorf("PA_JWT_SECRET must be set to the server's signing secret")
	}
	if err := auth.ValidateJWTSecret(); err != nil {
		return "", err
	}
	return auth.GenerateJWT(f.tenant, f.user, f.email, f.issuer, f.ttl)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "devtoken",
		Short:         "Local session tokens for the property audit API",
		Version:       api.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// Picks up PA_JWT_SECRET from the same .env the server reads
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("read .env: %w", err)
			}
			return nil
		},
	}
	root.AddCommand(mintCmd(), smokeCmd())
	return root
}

func mintCmd() *cobra.Command {
	var flags tokenFlags
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Print a signed session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := flags.mint()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func smokeCmd() *cobra.Command {
	var (
		flags   tokenFlags
		baseURL string
		path    string
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Call an authenticated endpoint and print the response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := flags.mint()
			if err != nil {
				return err
			}
			return smoke(cmd.OutOrStdout(), &http.Client{Timeout: 10 * time.Second}, baseURL+path, token)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&path, "path", "/api/v1/checklists/templates", "endpoint to call")
	return cmd
}

func smoke(out io.Writer, client *http.Client, url, token string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	status := color.New(color.FgGreen).Sprint(resp.Status)
	if resp.StatusCode >= 400 {
		status = color.New(color.FgRed).Sprint(resp.Status)
	}
	fmt.Fprintf(out, "Status: %s\n", status)
	if id := resp.Header.Get("X-Request-ID"); id != "" {
		fmt.Fprintf(out, "Request ID: %s\n", id)
	}
	fmt.Fprintf(out, "Response:\n%s\n", body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server answered %d", resp.StatusCode)
	}
	return nil
}
