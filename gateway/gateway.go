package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/location"
	"github.com/gin-gonic/gin"
	logging "github.com/ipfs/go-log/v2"
	"github.com/rs/cors"
	gincors "github.com/rs/cors/wrapper/gin"
	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/auth"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/registry"
)

const (
	handlerTimeout = time.Second * 10
	callerKey      = "caller"
)

var log = logging.Logger("gateway")

// Gateway provides HTTP access to the registry. Mutating calls act as
// the address mapped to the request's bearer token.
type Gateway struct {
	addr       string
	reg        *registry.Registry
	auth       *auth.Auth
	adminToken string

	router *gin.Engine
	server *http.Server
	lst    net.Listener
}

// New returns a new gateway. An empty adminToken disables the admin
// routes.
func New(addr string, reg *registry.Registry, a *auth.Auth, adminToken string) *Gateway {
	g := &Gateway{
		addr:       addr,
		reg:        reg,
		auth:       a,
		adminToken: adminToken,
	}
	g.router = g.routes()
	return g
}

// Start the gateway.
func (g *Gateway) Start() error {
	lst, err := net.Listen("tcp", g.addr)
	if err != nil {
		return err
	}
	g.lst = lst
	g.server = &http.Server{
		Addr:    lst.Addr().String(),
		Handler: g.router,
	}

	errc := make(chan error)
	go func() {
		errc <- g.server.Serve(lst)
		close(errc)
	}()
	go func() {
		for {
			select {
			case err, ok := <-errc:
				if err != nil {
					if err == http.ErrServerClosed {
						return
					}
					log.Errorf("gateway error: %s", err)
				}
				if !ok {
					log.Info("gateway was shutdown")
					return
				}
			}
		}
	}()
	log.Infof("gateway listening at %s", g.server.Addr)
	return nil
}

// Addr returns the gateway's address.
func (g *Gateway) Addr() string {
	if g.server == nil {
		return g.addr
	}
	return g.server.Addr
}

// Stop the gateway.
func (g *Gateway) Stop() error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		log.Errorf("error shutting down gateway: %s", err)
		return err
	}
	return nil
}

func (g *Gateway) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(location.Default())

	options := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}
	router.Use(gincors.New(options))

	router.GET("/health", func(c *gin.Context) {
		c.Writer.WriteHeader(http.StatusNoContent)
	})
	router.GET("/buildinfo", g.buildInfoHandler)
	router.GET("/params", g.paramsHandler)

	router.GET("/roles/:addr", g.roleHandler)
	router.GET("/roles/:addr/:role", g.eligibleHandler)
	router.GET("/balances/:addr", g.balanceHandler)
	router.GET("/held", g.heldHandler)
	router.GET("/transfers/:addr", g.transfersHandler)

	router.GET("/rounds", g.roundsHandler)
	router.GET("/rounds/:claim", g.roundHandler)
	router.GET("/jobs", g.jobsHandler)
	router.GET("/jobs/:claim", g.jobHandler)

	router.GET("/claims/:claim", g.claimHandler)
	router.GET("/claims/:claim/offers/:kind", g.offersOfHandler)
	router.GET("/offers/:kind/:offer", g.offerHandler)
	router.GET("/owners/:addr/claims", g.claimsOfHandler)
	router.GET("/owners/:addr/ipns", g.resolveIPNSHandler)
	router.GET("/owners/:addr/ipns/current", g.currentIPNSHandler)
	router.GET("/owners/:addr/delegates", g.delegatesOfHandler)
	router.GET("/owners/:addr/delegates/:delegate", g.isDelegateHandler)

	router.GET("/events", g.eventsHandler)
	router.GET("/events/watch", g.watchHandler)

	authed := router.Group("/", g.authenticate)
	authed.POST("/register", g.registerHandler)
	authed.POST("/ipns", g.setIPNSHandler)
	authed.POST("/files", g.addFileHandler)
	authed.POST("/delegates", g.addDelegateHandler)
	authed.POST("/delegated", g.addFileForHandler)
	authed.POST("/claims/:claim/paydelegate", g.payDelegateForHandler)
	authed.POST("/claims/:claim/accept", g.acceptFileHandler)
	authed.POST("/claims/:claim/offers/:kind", g.requestOfferHandler)
	authed.POST("/offers/:kind/:offer/accept", g.acceptOfferHandler)
	authed.POST("/offers/:kind/:offer/pay", g.payOfferHandler)
	authed.POST("/offers/:kind/:offer/good", g.goodOfferHandler)
	authed.POST("/offers/:kind/:offer/cancel", g.cancelOfferHandler)

	authed.POST("/rounds/:claim/respond", g.respondHandler)
	authed.POST("/rounds/:claim/finalize", g.finalizeHandler)
	authed.POST("/rounds/:claim/settle", g.settleHandler)
	authed.POST("/owners/:addr/ipns/respond", g.respondIPNSHandler)
	authed.POST("/owners/:addr/ipns/finalize", g.finalizeIPNSHandler)
	authed.POST("/owners/:addr/ipns/settle", g.settleIPNSHandler)
	authed.POST("/jobs/:claim/participate", g.participateHandler)
	authed.POST("/jobs/:claim/done", g.doneHandler)

	if g.adminToken != "" {
		admin := router.Group("/admin", g.authenticateAdmin)
		admin.POST("/tokens", g.createTokenHandler)
		admin.GET("/tokens", g.listTokensHandler)
		admin.DELETE("/tokens/:token", g.revokeTokenHandler)
		admin.POST("/deposit", g.depositHandler)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "route not found", Kind: "NotFound"})
	})
	return router
}

func (g *Gateway) authenticate(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "missing bearer token"})
		return
	}
	addr, err := g.auth.Get(token)
	if err == auth.ErrNotFound {
		c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid bearer token"})
		return
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.Set(callerKey, addr)
	c.Next()
}

func (g *Gateway) authenticateAdmin(c *gin.Context) {
	token, ok := bearer(c)
	if !ok || token != g.adminToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "admin token required"})
		return
	}
	c.Next()
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	return token, token != ""
}

func caller(c *gin.Context) oracles.Address {
	return c.MustGet(callerKey).(oracles.Address)
}

func callCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), handlerTimeout)
}

// fail writes err with the status of its taxonomy kind.
func (g *Gateway) fail(c *gin.Context, err error) {
	kind := oracles.Kind(err)
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s %s: %s", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: err.Error(), Kind: kind})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, oracles.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, oracles.ErrInvalidArgument), errors.Is(err, oracles.ErrInvalidIndex):
		return http.StatusBadRequest
	case errors.Is(err, oracles.ErrNotEligible), errors.Is(err, oracles.ErrNotClaimant):
		return http.StatusForbidden
	case errors.Is(err, oracles.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case oracles.Kind(err) != "":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
