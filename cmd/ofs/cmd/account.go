package cmd

import (
	"math/big"
	"os"
	"strconv"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/oraclefs/escrow/transferstore"
	"github.com/textileio/oraclefs/oracles"
)

func init() {
	registerCmd.Flags().String("stake", "", "Stake to escrow with the registration")
	rootCmd.AddCommand(registerCmd, roleCmd, balanceCmd, heldCmd, transfersCmd)
}

var registerCmd = &cobra.Command{
	Use:    "register [user|verifier|timeout-officer|reencryptor]",
	Short:  "Register the token address with a role",
	Long:   `Register the token address with a role. A role can't be changed once chosen.`,
	Args:   cobra.ExactArgs(1),
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		role, err := oracles.ParseRole(args[0])
		checkErr(err)
		var stake *big.Int
		if s := viper.GetString("stake"); s != "" {
			stake = parseAmount("stake", s)
		}
		checkErr(ofsClient.Escrow.Register(ctx, role, stake))
		Success("Registered as %s", aurora.White(role).Bold())
	},
}

var roleCmd = &cobra.Command{
	Use:   "role [address]",
	Short: "Show the role of an address",
	Long:  `Show the role of an address`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		role, err := ofsClient.Escrow.RoleOf(ctx, oracles.Address(args[0]))
		checkErr(err)
		Message("%s is %s", args[0], aurora.White(role).Bold())
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Show the available balance of an address",
	Long:  `Show the available balance of an address`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		bal, err := ofsClient.Escrow.Balance(ctx, oracles.Address(args[0]))
		checkErr(err)
		Message("Balance of %s: %s", args[0], aurora.White(amount(bal)).Bold())
	},
}

var heldCmd = &cobra.Command{
	Use:   "held",
	Short: "Show the value held in escrow",
	Long:  `Show the value held in escrow`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		held, err := ofsClient.Escrow.Held(ctx)
		checkErr(err)
		Message("Held in escrow: %s", aurora.White(amount(held)).Bold())
	},
}

var transfersCmd = &cobra.Command{
	Use:   "transfers [address]",
	Short: "List the transfers sent and received by an address",
	Long:  `List the transfers sent and received by an address`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		sent, received, err := ofsClient.Escrow.Transfers(ctx, oracles.Address(args[0]))
		checkErr(err)
		Message("%v", aurora.Blue("Sent:").Bold())
		RenderTable(os.Stdout, transferHeader, transferRows(sent))
		Message("%v", aurora.Blue("Received:").Bold())
		RenderTable(os.Stdout, transferHeader, transferRows(received))
	},
}

var transferHeader = []string{"time", "from", "to", "amount", "memo", "claim"}

func transferRows(ts []transferstore.Transfer) [][]string {
	data := make([][]string, len(ts))
	for i, t := range ts {
		claim := "-"
		if t.ClaimID != oracles.EmptyClaimID {
			claim = strconv.FormatUint(uint64(t.ClaimID), 10)
		}
		data[i] = []string{when(t.Time), t.From.String(), t.To.String(), amount(t.Amount), t.Memo, claim}
	}
	return data
}
