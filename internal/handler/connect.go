package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/marina-payment-relay/internal/config"
	"github.com/iliyamo/marina-payment-relay/internal/processor"
)

// ConnectStore is the slice of the ledger client used to cache connected
// account ids per location.
type ConnectStore interface {
	GetAccount(ctx context.Context, location string) (string, error)
	SetAccount(ctx context.Context, location, accountID string) error
}

// ConnectHandler onboards locations as connected accounts and hands out
// dashboard login links.  Accounts are created at most once per location;
// the id is cached in the ledger so creation is not re-attempted once
// stored.  The check-then-create is advisory only: two concurrent first
// requests for the same location can create two accounts upstream.
type ConnectHandler struct {
	Store        ConnectStore
	Proc         processor.Client
	Country      string
	BusinessType string
	URLBase      string
}

// NewConnectHandler constructs a ConnectHandler.
func NewConnectHandler(store ConnectStore, proc processor.Client, cfg config.Config) *ConnectHandler {
	if store == nil || proc == nil {
		panic("nil dependency passed to NewConnectHandler")
	}
	return &ConnectHandler{
		Store:        store,
		Proc:         proc,
		Country:      cfg.AccountCountry,
		BusinessType: cfg.AccountBusinessType,
		URLBase:      cfg.CheckoutURLBase,
	}
}

// GetPaid handles GET /connect/get-paid.  For a never-seen location it
// creates the connected account, caches the id and returns an onboarding
// link; for a known location it returns a dashboard login link, falling
// back to onboarding when the account has not finished it yet.
func (h *ConnectHandler) GetPaid(c echo.Context) error {
	location := c.QueryParam("location")
	if location == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_location"})
	}
	ctx := c.Request().Context()

	accountID, err := h.Store.GetAccount(ctx, location)
	if err != nil {
		c.Logger().Errorf("connect: get account for %s: %v", location, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}

	created := false
	if accountID == "" {
		accountID, err = h.Proc.CreateAccount(ctx, location, h.Country, h.BusinessType)
		if err != nil {
			c.Logger().Errorf("connect: create account for %s: %v", location, err)
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
		}
		created = true
		// The account exists upstream even if this cache write fails; the
		// next request would then create a duplicate.  Known gap, logged.
		if err := h.Store.SetAccount(ctx, location, accountID); err != nil {
			c.Logger().Errorf("connect: cache account %s for %s: %v", accountID, location, err)
		}
	}

	if !created {
		if link, err := h.Proc.LoginLink(ctx, accountID); err == nil {
			return c.JSON(http.StatusOK, echo.Map{"url": link})
		}
		// Login links only work after onboarding completes; fall through.
	}
	link, err := h.Proc.OnboardingLink(ctx, accountID, h.refreshURL(location), h.returnURL(location))
	if err != nil {
		c.Logger().Errorf("connect: onboarding link for %s: %v", location, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"url": link})
}

// Login handles GET /connect/login.  It only serves locations that already
// have a connected account.
func (h *ConnectHandler) Login(c echo.Context) error {
	location := c.QueryParam("location")
	if location == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_location"})
	}
	ctx := c.Request().Context()

	accountID, err := h.Store.GetAccount(ctx, location)
	if err != nil {
		c.Logger().Errorf("connect: get account for %s: %v", location, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}
	if accountID == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no_account_for_location"})
	}
	link, err := h.Proc.LoginLink(ctx, accountID)
	if err != nil {
		c.Logger().Errorf("connect: login link for %s: %v", location, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"url": link})
}

func (h *ConnectHandler) refreshURL(location string) string {
	return fmt.Sprintf("%s/get-paid?location=%s", h.URLBase, url.QueryEscape(location))
}

func (h *ConnectHandler) returnURL(location string) string {
	return fmt.Sprintf("%s/connected?location=%s", h.URLBase, url.QueryEscape(location))
}
