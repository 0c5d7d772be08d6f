package cmd

import (
	"github.com/caarlos0/spin"
	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/oraclefs/oracles"
)

func init() {
	addRewardFlags(filesAddCmd)
	filesAddForCmd.Flags().String("price", "0", "Price the owner pays for the re-encryption")
	filesPayCmd.Flags().String("reward", "0", "Reward of the reencryptor")
	filesPayCmd.Flags().String("value", "", "Value attached to the call, the reward if empty")
	addRewardFlags(filesAcceptCmd)

	filesCmd.AddCommand(filesAddCmd, filesAddForCmd, filesPayCmd, filesAcceptCmd)
	rootCmd.AddCommand(filesCmd)
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Provides commands to register files",
	Long:  `Provides commands to register files`,
}

var filesAddCmd = &cobra.Command{
	Use:    "add [name] [cid]",
	Short:  "Register a file you own and open its verification round",
	Long:   `Register a file you own and open its verification round`,
	Args:   cobra.ExactArgs(2),
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		s := spin.New("%s Registering file...")
		s.Start()
		cl, err := ofsClient.Files.AddFile(ctx, args[0], args[1], rewardFromFlags())
		s.Stop()
		checkErr(err)
		Success("Created file claim %s", aurora.White(cl.ID).Bold())
		renderClaim(cl)
	},
}

var filesAddForCmd = &cobra.Command{
	Use:    "addfor [owner] [name] [cid]",
	Short:  "Upload a file on behalf of an owner that made you its delegate",
	Long:   `Upload a file on behalf of an owner that made you its delegate`,
	Args:   cobra.ExactArgs(3),
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		price := parseAmount("price", viper.GetString("price"))
		cl, err := ofsClient.Files.AddFileFor(ctx, oracles.Address(args[0]), args[1], args[2], price)
		checkErr(err)
		Success("Created delegated claim %s", aurora.White(cl.ID).Bold())
		renderClaim(cl)
	},
}

var filesPayCmd = &cobra.Command{
	Use:    "pay [claim]",
	Short:  "Pay the re-encryption of a delegated upload",
	Long:   `Pay the re-encryption of a delegated upload`,
	Args:   cobra.ExactArgs(1),
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		reward := parseAmount("reward", viper.GetString("reward"))
		value := reward
		if s := viper.GetString("value"); s != "" {
			value = parseAmount("value", s)
		}
		j, err := ofsClient.Files.PayDelegateFor(ctx, parseClaimID(args[0]), reward, value)
		checkErr(err)
		Success("Opened re-encryption job for claim %s", aurora.White(j.ClaimID).Bold())
	},
}

var filesAcceptCmd = &cobra.Command{
	Use:    "accept [claim] [name] [cid]",
	Short:  "Take ownership of a re-encrypted delegated upload",
	Long:   `Take ownership of a re-encrypted delegated upload, opening a verification round for the accepted copy`,
	Args:   cobra.ExactArgs(3),
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		cl, err := ofsClient.Files.AcceptFile(ctx, parseClaimID(args[0]), args[1], args[2], rewardFromFlags())
		checkErr(err)
		Success("Accepted claim %s", aurora.White(cl.ID).Bold())
		renderClaim(cl)
	},
}
