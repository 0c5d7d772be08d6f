package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-contrib/location"
	"github.com/gin-gonic/gin"
	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/auth"
	"github.com/textileio/oraclefs/buildinfo"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/files/ledger"
	"github.com/textileio/oraclefs/oracles"
)

func (g *Gateway) buildInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, buildinfo.Get())
}

func (g *Gateway) paramsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, g.reg.Params())
}

func (g *Gateway) roleHandler(c *gin.Context) {
	addr := oracles.Address(c.Param("addr"))
	role, err := g.reg.RoleOf(addr)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RoleResponse{Address: addr, Role: role.String()})
}

func (g *Gateway) eligibleHandler(c *gin.Context) {
	role, err := oracles.ParseRole(c.Param("role"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok, err := g.reg.IsEligible(oracles.Address(c.Param("addr")), role)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.EligibleResponse{Eligible: ok})
}

func (g *Gateway) balanceHandler(c *gin.Context) {
	bal, err := g.reg.Balance(oracles.Address(c.Param("addr")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.AmountResponse{Amount: bal})
}

func (g *Gateway) heldHandler(c *gin.Context) {
	held, err := g.reg.Held()
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.AmountResponse{Amount: held})
}

func (g *Gateway) transfersHandler(c *gin.Context) {
	sent, received, err := g.reg.Transfers(oracles.Address(c.Param("addr")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TransfersResponse{Sent: sent, Received: received})
}

func (g *Gateway) roundsHandler(c *gin.Context) {
	var rounds []oracles.Round
	var err error
	switch f := c.DefaultQuery("filter", "unsettled"); f {
	case "unsettled":
		rounds, err = g.reg.UnsettledRounds()
	case "settleable":
		rounds, err = g.reg.SettleableRounds()
	default:
		err = fmt.Errorf("unknown rounds filter %q: %w", f, oracles.ErrInvalidArgument)
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RoundsResponse{Rounds: rounds})
}

func (g *Gateway) roundHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	r, err := g.reg.Round(id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (g *Gateway) jobsHandler(c *gin.Context) {
	var jobs []oracles.Job
	var err error
	switch f := c.DefaultQuery("filter", "available"); f {
	case "available":
		jobs, err = g.reg.AvailableJobs()
	case "active":
		jobs, err = g.reg.ActiveJobs()
	default:
		err = fmt.Errorf("unknown jobs filter %q: %w", f, oracles.ErrInvalidArgument)
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.JobsResponse{Jobs: jobs})
}

func (g *Gateway) jobHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	j, err := g.reg.Job(id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (g *Gateway) claimHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	cl, err := g.reg.Claim(id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (g *Gateway) claimsOfHandler(c *gin.Context) {
	cls, err := g.reg.ClaimsOf(oracles.Address(c.Param("addr")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ClaimsResponse{Claims: cls})
}

func (g *Gateway) resolveIPNSHandler(c *gin.Context) {
	cl, err := g.reg.ResolveIPNS(oracles.Address(c.Param("addr")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (g *Gateway) currentIPNSHandler(c *gin.Context) {
	cl, err := g.reg.CurrentIPNS(oracles.Address(c.Param("addr")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (g *Gateway) delegatesOfHandler(c *gin.Context) {
	dels, err := g.reg.DelegatesOf(oracles.Address(c.Param("addr")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DelegatesResponse{Delegates: dels})
}

func (g *Gateway) isDelegateHandler(c *gin.Context) {
	ok, err := g.reg.IsDelegate(oracles.Address(c.Param("addr")), oracles.Address(c.Param("delegate")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.EligibleResponse{Eligible: ok})
}

func (g *Gateway) offerHandler(c *gin.Context) {
	kind, id, ok := g.offerParams(c)
	if !ok {
		return
	}
	o, err := g.reg.Offer(kind, id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (g *Gateway) offersOfHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	kind, err := files.ParseOfferKind(c.Param("kind"))
	if err != nil {
		g.fail(c, err)
		return
	}
	offers, err := g.reg.OffersOf(id, kind)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.OffersResponse{Offers: offers})
}

func (g *Gateway) eventsHandler(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		g.fail(c, fmt.Errorf("parsing since: %w", oracles.ErrInvalidArgument))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		g.fail(c, fmt.Errorf("parsing limit: %w", oracles.ErrInvalidArgument))
		return
	}
	evs, err := g.reg.Events(since, limit)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.EventsResponse{Events: evs})
}

// watchHandler streams newly committed events as JSON lines until the
// client goes away.
func (g *Gateway) watchHandler(c *gin.Context) {
	ctx := c.Request.Context()
	ch := make(chan oracles.Event, 64)
	go func() {
		if err := g.reg.Watch(ctx, ch); err != nil {
			log.Errorf("watching events: %s", err)
		}
		close(ch)
	}()
	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		e, ok := <-ch
		if !ok {
			return false
		}
		if err := json.NewEncoder(w).Encode(e); err != nil {
			log.Errorf("encoding watched event: %s", err)
			return false
		}
		return true
	})
}

func (g *Gateway) registerHandler(c *gin.Context) {
	var req api.RegisterRequest
	if !g.bind(c, &req) {
		return
	}
	role, err := oracles.ParseRole(req.Role)
	if err != nil {
		g.fail(c, err)
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	if role == oracles.User && req.Stake == nil {
		err = g.reg.Register(ctx, caller(c))
	} else {
		err = g.reg.RegisterAs(ctx, caller(c), role, oracles.NonNil(req.Stake))
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RoleResponse{Address: caller(c), Role: role.String()})
}

func (g *Gateway) setIPNSHandler(c *gin.Context) {
	var req api.SetIPNSRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	cl, err := g.reg.SetIPNS(ctx, caller(c), req.Pointer, reward(req.Reward))
	if err != nil {
		g.fail(c, err)
		return
	}
	created(c, cl)
}

func (g *Gateway) addFileHandler(c *gin.Context) {
	var req api.FileRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	cl, err := g.reg.AddFile(ctx, caller(c), req.Name, req.CID, reward(req.Reward))
	if err != nil {
		g.fail(c, err)
		return
	}
	created(c, cl)
}

func (g *Gateway) addDelegateHandler(c *gin.Context) {
	var req api.DelegateRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	if err := g.reg.AddDelegate(ctx, caller(c), req.Delegate); err != nil {
		g.fail(c, err)
		return
	}
	c.Writer.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) addFileForHandler(c *gin.Context) {
	var req api.FileForRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	cl, err := g.reg.AddFileFor(ctx, caller(c), req.Owner, req.Name, req.CID, oracles.NonNil(req.Price))
	if err != nil {
		g.fail(c, err)
		return
	}
	created(c, cl)
}

func (g *Gateway) payDelegateForHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	var req api.PayDelegateRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	j, err := g.reg.PayDelegateFor(ctx, caller(c), id, oracles.NonNil(req.Reward), oracles.NonNil(req.Value))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (g *Gateway) acceptFileHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	var req api.FileRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	cl, err := g.reg.AcceptFile(ctx, caller(c), id, req.Name, req.CID, reward(req.Reward))
	if err != nil {
		g.fail(c, err)
		return
	}
	created(c, cl)
}

func (g *Gateway) requestOfferHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	kind, err := files.ParseOfferKind(c.Param("kind"))
	if err != nil {
		g.fail(c, err)
		return
	}
	var req api.ValueRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	var o files.Offer
	switch kind {
	case files.PurchaseOffer:
		o, err = g.reg.RequestPurchase(ctx, caller(c), id, oracles.NonNil(req.Value))
	default:
		o, err = g.reg.RequestLicense(ctx, caller(c), id, oracles.NonNil(req.Value))
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (g *Gateway) acceptOfferHandler(c *gin.Context) {
	kind, id, ok := g.offerParams(c)
	if !ok {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	var o files.Offer
	var err error
	switch kind {
	case files.PurchaseOffer:
		o, err = g.reg.AcceptPurchase(ctx, caller(c), id)
	default:
		o, err = g.reg.AcceptLicense(ctx, caller(c), id)
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (g *Gateway) payOfferHandler(c *gin.Context) {
	kind, id, ok := g.offerParams(c)
	if !ok {
		return
	}
	var req api.ValueRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	var o files.Offer
	var err error
	switch kind {
	case files.PurchaseOffer:
		o, err = g.reg.PayPurchaseOf(ctx, caller(c), id, oracles.NonNil(req.Value))
	default:
		o, err = g.reg.PayLicenseOf(ctx, caller(c), id, oracles.NonNil(req.Value))
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// goodOfferHandler completes an offer. A purchase carries the new
// copy's name, cid and reward in the body. A license has no body.
func (g *Gateway) goodOfferHandler(c *gin.Context) {
	kind, id, ok := g.offerParams(c)
	if !ok {
		return
	}
	var cl files.Claim
	var err error
	switch kind {
	case files.PurchaseOffer:
		var req api.FileRequest
		if !g.bind(c, &req) {
			return
		}
		ctx, cancel := callCtx(c)
		defer cancel()
		cl, err = g.reg.GoodPurchase(ctx, caller(c), id, req.Name, req.CID, reward(req.Reward))
	default:
		ctx, cancel := callCtx(c)
		defer cancel()
		cl, err = g.reg.GoodLicense(ctx, caller(c), id)
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	created(c, cl)
}

func (g *Gateway) cancelOfferHandler(c *gin.Context) {
	kind, id, ok := g.offerParams(c)
	if !ok {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	o, err := g.reg.CancelOffer(ctx, caller(c), kind, id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (g *Gateway) respondHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	var req api.RespondRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	idx, err := g.reg.Respond(ctx, caller(c), id, req.Accept)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RespondResponse{Index: idx})
}

func (g *Gateway) finalizeHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	var req api.FinalizeRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	if err := g.reg.Finalize(ctx, caller(c), id, req.Index); err != nil {
		g.fail(c, err)
		return
	}
	c.Writer.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) settleHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	r, d, err := g.reg.Settle(ctx, caller(c), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.SettleResponse{Round: r, Distribution: d})
}

func (g *Gateway) respondIPNSHandler(c *gin.Context) {
	var req api.RespondRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	idx, err := g.reg.RespondIPNS(ctx, caller(c), oracles.Address(c.Param("addr")), req.Accept)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RespondResponse{Index: idx})
}

func (g *Gateway) finalizeIPNSHandler(c *gin.Context) {
	var req api.FinalizeRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	if err := g.reg.FinalizeIPNS(ctx, caller(c), oracles.Address(c.Param("addr")), req.Index); err != nil {
		g.fail(c, err)
		return
	}
	c.Writer.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) settleIPNSHandler(c *gin.Context) {
	ctx, cancel := callCtx(c)
	defer cancel()
	r, d, err := g.reg.ReturnIPNSSettlement(ctx, caller(c), oracles.Address(c.Param("addr")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.SettleResponse{Round: r, Distribution: d})
}

func (g *Gateway) participateHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	j, err := g.reg.ParticipateFileRE(ctx, caller(c), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (g *Gateway) doneHandler(c *gin.Context) {
	id, ok := g.claimParam(c)
	if !ok {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	j, err := g.reg.DoneFileRE(ctx, caller(c), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (g *Gateway) createTokenHandler(c *gin.Context) {
	var req api.TokenRequest
	if !g.bind(c, &req) {
		return
	}
	token, err := g.auth.Generate(req.Address)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TokenResponse{Token: token})
}

func (g *Gateway) listTokensHandler(c *gin.Context) {
	entries, err := g.auth.List()
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TokensResponse{Tokens: entries})
}

func (g *Gateway) revokeTokenHandler(c *gin.Context) {
	err := g.auth.Revoke(c.Param("token"))
	if err == auth.ErrNotFound {
		g.fail(c, fmt.Errorf("revoking token: %w", oracles.ErrNotFound))
		return
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.Writer.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) depositHandler(c *gin.Context) {
	var req api.DepositRequest
	if !g.bind(c, &req) {
		return
	}
	ctx, cancel := callCtx(c)
	defer cancel()
	if err := g.reg.Deposit(ctx, req.Address, oracles.NonNil(req.Amount)); err != nil {
		g.fail(c, err)
		return
	}
	bal, err := g.reg.Balance(req.Address)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.AmountResponse{Amount: bal})
}

func (g *Gateway) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		g.fail(c, fmt.Errorf("decoding request body: %s: %w", err, oracles.ErrInvalidArgument))
		return false
	}
	return true
}

func (g *Gateway) claimParam(c *gin.Context) (oracles.ClaimID, bool) {
	id, err := oracles.ParseClaimID(c.Param("claim"))
	if err != nil {
		g.fail(c, err)
		return oracles.EmptyClaimID, false
	}
	return id, true
}

func (g *Gateway) offerParams(c *gin.Context) (files.OfferKind, uint64, bool) {
	kind, err := files.ParseOfferKind(c.Param("kind"))
	if err != nil {
		g.fail(c, err)
		return 0, 0, false
	}
	id, err := strconv.ParseUint(c.Param("offer"), 10, 64)
	if err != nil || id == 0 {
		g.fail(c, fmt.Errorf("invalid offer id %q: %w", c.Param("offer"), oracles.ErrInvalidArgument))
		return 0, 0, false
	}
	return kind, id, true
}

func reward(r api.Reward) ledger.Reward {
	return ledger.Reward{
		Verifier: oracles.NonNil(r.Verifier),
		Timeout:  oracles.NonNil(r.Timeout),
		Value:    oracles.NonNil(r.Value),
	}
}

// created writes cl pointing Location at its canonical URL.
func created(c *gin.Context, cl files.Claim) {
	if u := location.Get(c); u != nil {
		c.Header("Location", fmt.Sprintf("%s://%s/claims/%s", u.Scheme, u.Host, cl.ID))
	}
	c.JSON(http.StatusCreated, cl)
}
