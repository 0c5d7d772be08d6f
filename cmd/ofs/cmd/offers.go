package cmd

import (
	"os"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/oraclefs/files"
)

func init() {
	offersPayCmd.Flags().String("value", "0", "Reward of the reencryptor")
	addRewardFlags(offersGoodCmd)
	offersGoodCmd.Flags().String("name", "", "Name of the purchased copy")
	offersGoodCmd.Flags().String("cid", "", "CID of the purchased copy")

	offersCmd.AddCommand(offersRequestCmd, offersAcceptCmd, offersPayCmd, offersGoodCmd, offersCancelCmd, offersGetCmd, offersListCmd)
	rootCmd.AddCommand(offersCmd)
}

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "Provides commands to purchase and license files",
	Long:  `Provides commands to purchase and license files. Offer kinds are purchase and license.`,
}

var offersRequestCmd = &cobra.Command{
	Use:   "request [purchase|license] [claim] [price]",
	Short: "Offer to purchase or license a file",
	Long:  `Offer to purchase or license a file. The price is held in escrow until the offer completes or is cancelled.`,
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		o, err := ofsClient.Files.Request(ctx, parseOfferKind(args[0]), parseClaimID(args[1]), parseAmount("price", args[2]))
		checkErr(err)
		Success("Requested %s offer %s", o.Kind, aurora.White(o.ID).Bold())
		renderOffer(o)
	},
}

var offersAcceptCmd = &cobra.Command{
	Use:   "accept [purchase|license] [offer]",
	Short: "Accept an offer on a file you own",
	Long:  `Accept an offer on a file you own`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		o, err := ofsClient.Files.Accept(ctx, parseOfferKind(args[0]), parseUint("offer", args[1]))
		checkErr(err)
		Success("Accepted %s offer %s", o.Kind, aurora.White(o.ID).Bold())
	},
}

var offersPayCmd = &cobra.Command{
	Use:    "pay [purchase|license] [offer]",
	Short:  "Fund the re-encryption job of an accepted offer",
	Long:   `Fund the re-encryption job of an accepted offer`,
	Args:   cobra.ExactArgs(2),
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		o, err := ofsClient.Files.Pay(ctx, parseOfferKind(args[0]), parseUint("offer", args[1]), parseAmount("value", viper.GetString("value")))
		checkErr(err)
		Success("Paid %s offer %s, waiting for re-encryption", o.Kind, aurora.White(o.ID).Bold())
	},
}

var offersGoodCmd = &cobra.Command{
	Use:    "good [purchase|license] [offer]",
	Short:  "Complete an offer once its re-encryption is done",
	Long:   `Complete an offer once its re-encryption is done. A purchase needs --name and --cid of the copy, and opens its verification round.`,
	Args:   cobra.ExactArgs(2),
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		kind := parseOfferKind(args[0])
		id := parseUint("offer", args[1])
		var cl files.Claim
		var err error
		if kind == files.PurchaseOffer {
			cl, err = ofsClient.Files.GoodPurchase(ctx, id, viper.GetString("name"), viper.GetString("cid"), rewardFromFlags())
		} else {
			cl, err = ofsClient.Files.GoodLicense(ctx, id)
		}
		checkErr(err)
		Success("Completed %s offer %d", kind, id)
		renderClaim(cl)
	},
}

var offersCancelCmd = &cobra.Command{
	Use:   "cancel [purchase|license] [offer]",
	Short: "Cancel an unpaid offer and get its price back",
	Long:  `Cancel an unpaid offer and get its price back`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		o, err := ofsClient.Files.Cancel(ctx, parseOfferKind(args[0]), parseUint("offer", args[1]))
		checkErr(err)
		Success("Cancelled %s offer %d, refunded %s", o.Kind, o.ID, aurora.White(amount(o.Price)).Bold())
	},
}

var offersGetCmd = &cobra.Command{
	Use:   "get [purchase|license] [offer]",
	Short: "Show an offer",
	Long:  `Show an offer`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		o, err := ofsClient.Files.Offer(ctx, parseOfferKind(args[0]), parseUint("offer", args[1]))
		checkErr(err)
		renderOffer(o)
	},
}

var offersListCmd = &cobra.Command{
	Use:   "list [purchase|license] [claim]",
	Short: "List the offers made on a claim",
	Long:  `List the offers made on a claim`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		offers, err := ofsClient.Files.OffersOf(ctx, parseClaimID(args[1]), parseOfferKind(args[0]))
		checkErr(err)
		RenderTable(os.Stdout, offerHeader, offerRows(offers))
		Message("Found %d offers", aurora.White(len(offers)).Bold())
	},
}
