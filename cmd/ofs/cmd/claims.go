package cmd

import (
	"os"

	"github.com/caarlos0/spin"
	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/textileio/oraclefs/oracles"
)

func init() {
	addRewardFlags(ipnsSetCmd)
	ipnsCmd.AddCommand(ipnsSetCmd, ipnsResolveCmd, ipnsCurrentCmd)

	claimsCmd.AddCommand(claimsGetCmd, claimsListCmd)

	delegatesCmd.AddCommand(delegatesAddCmd, delegatesListCmd)
	rootCmd.AddCommand(ipnsCmd, claimsCmd, delegatesCmd)
}

var ipnsCmd = &cobra.Command{
	Use:   "ipns",
	Short: "Provides commands to publish and resolve IPNS pointers",
	Long:  `Provides commands to publish and resolve IPNS pointers`,
}

var ipnsSetCmd = &cobra.Command{
	Use:    "set [pointer]",
	Short:  "Publish a new IPNS pointer and open its verification round",
	Long:   `Publish a new IPNS pointer and open its verification round`,
	Args:   cobra.ExactArgs(1),
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		s := spin.New("%s Publishing pointer...")
		s.Start()
		cl, err := ofsClient.Files.SetIPNS(ctx, args[0], rewardFromFlags())
		s.Stop()
		checkErr(err)
		Success("Created IPNS claim %s", aurora.White(cl.ID).Bold())
		renderClaim(cl)
	},
}

var ipnsResolveCmd = &cobra.Command{
	Use:   "resolve [owner]",
	Short: "Resolve the latest accepted IPNS pointer of an owner",
	Long:  `Resolve the latest accepted IPNS pointer of an owner`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		cl, err := ofsClient.Files.ResolveIPNS(ctx, oracles.Address(args[0]))
		checkErr(err)
		Message("%s resolves to %s", args[0], aurora.White(cl.Pointer).Bold())
	},
}

var ipnsCurrentCmd = &cobra.Command{
	Use:   "current [owner]",
	Short: "Show the latest IPNS claim of an owner, verified or not",
	Long:  `Show the latest IPNS claim of an owner, verified or not`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		cl, err := ofsClient.Files.CurrentIPNS(ctx, oracles.Address(args[0]))
		checkErr(err)
		renderClaim(cl)
	},
}

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Provides commands to inspect claims",
	Long:  `Provides commands to inspect claims`,
}

var claimsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show a claim",
	Long:  `Show a claim`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		cl, err := ofsClient.Files.Claim(ctx, parseClaimID(args[0]))
		checkErr(err)
		renderClaim(cl)
		if len(cl.Licensees) > 0 {
			Message("Licensees: %v", cl.Licensees)
		}
	},
}

var claimsListCmd = &cobra.Command{
	Use:   "list [owner]",
	Short: "List the claims of an owner",
	Long:  `List the claims of an owner`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		cls, err := ofsClient.Files.ClaimsOf(ctx, oracles.Address(args[0]))
		checkErr(err)
		RenderTable(os.Stdout, claimHeader, claimRows(cls))
		Message("Found %d claims", aurora.White(len(cls)).Bold())
	},
}

var delegatesCmd = &cobra.Command{
	Use:   "delegates",
	Short: "Provides commands to manage upload delegates",
	Long:  `Provides commands to manage upload delegates`,
}

var delegatesAddCmd = &cobra.Command{
	Use:   "add [delegate]",
	Short: "Authorize a user to upload files on your behalf",
	Long:  `Authorize a user to upload files on your behalf`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		checkErr(ofsClient.Files.AddDelegate(ctx, oracles.Address(args[0])))
		Success("Added delegate %s", aurora.White(args[0]).Bold())
	},
}

var delegatesListCmd = &cobra.Command{
	Use:   "list [owner]",
	Short: "List the delegates of an owner",
	Long:  `List the delegates of an owner`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		dels, err := ofsClient.Files.DelegatesOf(ctx, oracles.Address(args[0]))
		checkErr(err)
		data := make([][]string, len(dels))
		for i, d := range dels {
			data[i] = []string{d.String()}
		}
		RenderTable(os.Stdout, []string{"delegate"}, data)
	},
}
