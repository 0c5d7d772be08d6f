package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/api/client"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/oracles"
)

// Message prints a message to stdout.
func Message(format string, args ...interface{}) {
	fmt.Println(aurora.Sprintf(aurora.BrightBlack("> "+format), args...))
}

// Success prints a success message to stdout.
func Success(format string, args ...interface{}) {
	fmt.Println(aurora.Sprintf(aurora.Cyan("> Success! %s"),
		aurora.Sprintf(aurora.BrightBlack(format), args...)))
}

// Fatal prints a fatal error to stdout, and exits immediately with
// error code 1.
func Fatal(err error, args ...interface{}) {
	words := strings.SplitN(err.Error(), " ", 2)
	words[0] = strings.Title(words[0])
	msg := strings.Join(words, " ")
	var gerr *client.Error
	if errors.As(err, &gerr) && oracles.Kind(err) != "" {
		msg = fmt.Sprintf("%s [%s]", msg, oracles.Kind(err))
	}
	fmt.Println(aurora.Sprintf(aurora.Red("> Error! %s"),
		aurora.Sprintf(aurora.BrightBlack(msg), args...)))
	os.Exit(1)
}

// RenderTable renders a table with header columns and data rows to writer.
func RenderTable(writer io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	headersColors := make([]tablewriter.Colors, len(header))
	for i := range headersColors {
		headersColors[i] = tablewriter.Colors{tablewriter.FgHiBlackColor}
	}
	table.SetHeaderColor(headersColors...)
	table.AppendBulk(data)
	table.Render()
}

func checkErr(e error) {
	if e != nil {
		Fatal(e)
	}
}

func mustToken() {
	if viper.GetString("token") == "" {
		Fatal(errors.New("must provide -t token"))
	}
}

func bindFlags(cmd *cobra.Command, args []string) {
	err := viper.BindPFlags(cmd.Flags())
	checkErr(err)
}

func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cmdTimeout)
}

func parseAmount(name, s string) *big.Int {
	a, err := oracles.Amount(s)
	if err != nil {
		Fatal(fmt.Errorf("parsing %s: %s", name, err))
	}
	return a
}

func parseClaimID(s string) oracles.ClaimID {
	id, err := oracles.ParseClaimID(s)
	checkErr(err)
	return id
}

func parseUint(name, s string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		Fatal(fmt.Errorf("parsing %s %q: %s", name, s, err))
	}
	return n
}

func parseOfferKind(s string) files.OfferKind {
	k, err := files.ParseOfferKind(s)
	checkErr(err)
	return k
}

// rewardFromFlags reads the --verifier and --timeout reward flags. The
// attached value is their sum unless --value is set.
func rewardFromFlags() api.Reward {
	v := parseAmount("verifier reward", viper.GetString("verifier"))
	t := parseAmount("timeout reward", viper.GetString("timeout"))
	value := new(big.Int).Add(v, t)
	if s := viper.GetString("value"); s != "" {
		value = parseAmount("value", s)
	}
	return api.Reward{Verifier: v, Timeout: t, Value: value}
}

func addRewardFlags(cmd *cobra.Command) {
	cmd.Flags().String("verifier", "0", "Reward shared by the verifiers of the claim")
	cmd.Flags().String("timeout", "0", "Reward of the timeout officer that settles the round")
	cmd.Flags().String("value", "", "Value attached to the call, verifier+timeout if empty")
}

func amount(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return humanize.BigComma(a)
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func claimRows(cls []files.Claim) [][]string {
	data := make([][]string, len(cls))
	for i, cl := range cls {
		target := cl.Pointer
		if cl.Kind == files.File {
			target = cl.Name + " " + cl.CID
		}
		data[i] = []string{
			cl.ID.String(),
			files.ClaimKindStr[cl.Kind],
			cl.Owner.String(),
			target,
			files.ClaimStatusStr[cl.Status],
			files.OriginStr[cl.Origin],
			when(cl.UpdatedAt),
		}
	}
	return data
}

var claimHeader = []string{"id", "kind", "owner", "target", "status", "origin", "updated"}

func renderClaim(cl files.Claim) {
	RenderTable(os.Stdout, claimHeader, claimRows([]files.Claim{cl}))
}

func offerRows(offers []files.Offer) [][]string {
	data := make([][]string, len(offers))
	for i, o := range offers {
		data[i] = []string{
			strconv.FormatUint(o.ID, 10),
			o.Kind.String(),
			o.ClaimID.String(),
			o.Requester.String(),
			amount(o.Price),
			amount(o.Reward),
			files.OfferStatusStr[o.Status],
			when(o.UpdatedAt),
		}
	}
	return data
}

var offerHeader = []string{"id", "kind", "claim", "requester", "price", "reward", "status", "updated"}

func renderOffer(o files.Offer) {
	RenderTable(os.Stdout, offerHeader, offerRows([]files.Offer{o}))
}

func roundRows(rs []oracles.Round) [][]string {
	data := make([][]string, len(rs))
	for i, r := range rs {
		data[i] = []string{
			r.ClaimID.String(),
			r.Status.String(),
			r.Outcome.String(),
			fmt.Sprintf("%d/%d", r.Yes, r.No),
			fmt.Sprintf("%d/%d", r.FinalYes, r.FinalNo),
			amount(r.VerifierPool),
			amount(r.TimeoutPool),
			when(r.ResponseDeadline),
			when(r.FinalizeDeadline),
			strconv.FormatBool(r.Settled),
		}
	}
	return data
}

var roundHeader = []string{"claim", "status", "outcome", "yes/no", "final yes/no", "verifier pool", "timeout pool", "response deadline", "finalize deadline", "settled"}

func jobRows(js []oracles.Job) [][]string {
	data := make([][]string, len(js))
	for i, j := range js {
		data[i] = []string{
			j.ClaimID.String(),
			j.Purpose.String(),
			strconv.FormatUint(j.OfferID, 10),
			j.Recipient.String(),
			amount(j.Reward),
			j.Status.String(),
			j.Claimant.String(),
			when(j.ClaimedAt),
		}
	}
	return data
}

var jobHeader = []string{"claim", "purpose", "offer", "recipient", "reward", "status", "claimant", "claimed"}
