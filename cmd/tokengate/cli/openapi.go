package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tokengate/internal/auth"
	"github.com/faucetdb/tokengate/internal/openapi"
	"github.com/faucetdb/tokengate/internal/server"
	"github.com/faucetdb/tokengate/internal/service"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate OpenAPI specification",
		Long: `Generate an OpenAPI 3.1 specification for every model declared in the
config file, including the built-in AccessToken model and the configured
token locations as security schemes.`,
		Example: `  tokengate openapi
  tokengate openapi -o spec.json
  tokengate openapi --base-url https://api.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(cmd, baseURL, outputFile)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL (default: http://<host>:<port>)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(cmd *cobra.Command, baseURL, outputFile string) error {
	store, cfg, err := openConfigStore()
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := server.BuildRegistry(cfg, service.NewTokenService(store))
	if err != nil {
		return err
	}

	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", displayHost(cfg.Server.Host), cfg.Server.Port)
	}

	loc := openapi.TokenLocations{
		Params:  cfg.Auth.Params,
		Headers: cfg.Auth.Headers,
		Cookies: cfg.Auth.Cookies,
	}
	if loc.Params == nil {
		loc.Params = []string{auth.DefaultParam}
	}
	if loc.Headers == nil {
		loc.Headers = auth.DefaultHeaders
	}
	if loc.Cookies == nil {
		loc.Cookies = []string{auth.DefaultCookie}
	}

	doc := openapi.Generate(registry.Models(), baseURL, loc)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}

	if outputFile == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	if err := os.WriteFile(outputFile, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write spec: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outputFile)
	return nil
}
