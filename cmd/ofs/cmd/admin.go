package cmd

import (
	"os"

	"github.com/caarlos0/spin"
	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/textileio/oraclefs/oracles"
)

func init() {
	adminCmd.AddCommand(adminTokenCmd, adminTokensCmd, adminRevokeCmd, adminDepositCmd)
	rootCmd.AddCommand(adminCmd)
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Provides admin commands",
	Long:  `Provides admin commands. They require -t to be the daemon admin token.`,
}

var adminTokenCmd = &cobra.Command{
	Use:   "token [address]",
	Short: "Create an auth token acting as an address",
	Long:  `Create an auth token acting as an address`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		token, err := ofsClient.Admin.CreateToken(ctx, oracles.Address(args[0]))
		checkErr(err)
		Success("Token for %s: %s", aurora.White(args[0]).Bold(), aurora.White(token).Bold())
	},
}

var adminTokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List auth tokens",
	Long:  `List auth tokens`,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		entries, err := ofsClient.Admin.Tokens(ctx)
		checkErr(err)
		data := make([][]string, len(entries))
		for i, e := range entries {
			data[i] = []string{e.Address.String(), e.Token}
		}
		RenderTable(os.Stdout, []string{"address", "token"}, data)
		Message("Found %d tokens", aurora.White(len(entries)).Bold())
	},
}

var adminRevokeCmd = &cobra.Command{
	Use:   "revoke [token]",
	Short: "Revoke an auth token",
	Long:  `Revoke an auth token`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		checkErr(ofsClient.Admin.RevokeToken(ctx, args[0]))
		Success("Token revoked")
	},
}

var adminDepositCmd = &cobra.Command{
	Use:   "deposit [address] [amount]",
	Short: "Credit funds to an address",
	Long:  `Credit funds to an address`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		s := spin.New("%s Depositing funds...")
		s.Start()
		bal, err := ofsClient.Admin.Deposit(ctx, oracles.Address(args[0]), parseAmount("amount", args[1]))
		s.Stop()
		checkErr(err)
		Success("Balance of %s is now %s", args[0], aurora.White(amount(bal)).Bold())
	},
}
