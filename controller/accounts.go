package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/model"
	rmodel "github.com/relaygate/relaygate/relay/model"
)

// ListAccounts serves GET /v2/accounts: every account, enabled or not, for
// the admin surface (spec §6).
func (app *AppContext) ListAccounts(c *gin.Context) {
	accounts, err := model.ListAllAccounts()
	if err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, err, "list accounts"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

// GetAccount serves GET /v2/accounts/{id}.
func (app *AppContext) GetAccount(c *gin.Context) {
	id, err := accountIdParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	account, aerr := model.GetAccount(id)
	if aerr != nil {
		writeError(c, rmodel.WrapError(rmodel.KindNotFound, aerr, "account not found"))
		return
	}
	c.JSON(http.StatusOK, account)
}

// CreateAccount serves POST /v2/accounts.
func (app *AppContext) CreateAccount(c *gin.Context) {
	var account model.Account
	if err := c.ShouldBindJSON(&account); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, err, "invalid account body"))
		return
	}
	if err := model.CreateAccount(&account); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, err, "create account"))
		return
	}
	c.JSON(http.StatusOK, account)
}

// PatchAccount serves PATCH /v2/accounts/{id}.
func (app *AppContext) PatchAccount(c *gin.Context) {
	id, err := accountIdParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var patch model.AccountPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, err, "invalid patch body"))
		return
	}
	account, aerr := model.UpdateAccount(id, patch)
	if aerr != nil {
		writeError(c, rmodel.WrapError(rmodel.KindNotFound, aerr, "update account"))
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteAccount serves DELETE /v2/accounts/{id}.
func (app *AppContext) DeleteAccount(c *gin.Context) {
	id, err := accountIdParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := model.DeleteAccount(id); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindNotFound, err, "delete account"))
		return
	}
	c.Status(http.StatusOK)
}

// RefreshAccount serves POST /v2/accounts/{id}/refresh: forces a token
// refresh outside of the request path (spec §6).
func (app *AppContext) RefreshAccount(c *gin.Context) {
	id, err := accountIdParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	account, aerr := model.GetAccount(id)
	if aerr != nil {
		writeError(c, rmodel.WrapError(rmodel.KindNotFound, aerr, "account not found"))
		return
	}
	if _, rerr := app.Tokens.ForceRefresh(c.Request.Context(), account); rerr != nil {
		writeError(c, rmodel.WrapError(rmodel.KindTokenRefreshError, rerr, "force refresh"))
		return
	}
	c.Status(http.StatusOK)
}

// AccountQuota serves GET /v2/accounts/{id}/quota: the persisted Quota
// Ledger, self-healed on read (spec §3, §6).
func (app *AppContext) AccountQuota(c *gin.Context) {
	id, err := accountIdParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	account, aerr := model.GetAccount(id)
	if aerr != nil {
		writeError(c, rmodel.WrapError(rmodel.KindNotFound, aerr, "account not found"))
		return
	}
	bag, berr := account.LoadOther()
	if berr != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, berr, "load quota ledger"))
		return
	}
	for modelID := range bag.Quota {
		if _, rerr := model.RestoreModelQuotaIfDue(account, modelID); rerr == nil {
			bag, _ = account.LoadOther()
		}
	}
	c.JSON(http.StatusOK, gin.H{"quota": bag.Quota, "suspended": bag.Suspension})
}

func accountIdParam(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, rmodel.NewError(rmodel.KindBadRequest, "id must be numeric")
	}
	return id, nil
}
