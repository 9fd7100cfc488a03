// Command tenantgate runs the multi-tenant settings gateway and offers
// tooling around tenant authenticators.
//
//	tenantgate serve --config config.yaml
//	tenantgate try --file authn.yaml -H "Authorization=Bearer key-123"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tenantgate",
		Short: "Multi-tenant settings gateway with dynamic authentication",
		Long: `tenantgate serves tenant settings behind authenticators that each
tenant defines itself, either as an HTTP call or as a sandboxed script.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
