package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/common/config"
	"github.com/relaygate/relaygate/model"
	"github.com/relaygate/relaygate/relay/adaptor/gemini"
	rmodel "github.com/relaygate/relaygate/relay/model"
)

const googleOAuthTokenURL = "https://oauth2.googleapis.com/token"

type oauthCallbackRequest struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// OAuthCallback serves POST /api/gemini/oauth-callback: it exchanges an
// authorization code minted by the out-of-scope interactive OAuth helper for
// a refresh token, discovers the account's Cloud Assist project and
// persists a new Gemini account (spec §6, §4.1 create).
func (app *AppContext) OAuthCallback(c *gin.Context) {
	var req oauthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		writeError(c, rmodel.NewError(rmodel.KindBadRequest, "code is required"))
		return
	}

	refreshToken, accessToken, err := exchangeAuthCode(c.Request.Context(), req.Code)
	if err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindTokenRefreshError, err, "exchange oauth code"))
		return
	}

	account := &model.Account{
		Label:        req.Label,
		Type:         model.AccountTypeGemini,
		Enabled:      true,
		ClientId:     config.GeminiClientID,
		ClientSecret: config.GeminiClientSecret,
		RefreshToken: refreshToken,
		AccessToken:  accessToken,
	}
	if err := model.CreateAccount(account); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, err, "persist account"))
		return
	}

	client := gemini.New()
	project, err := client.LoadCodeAssist(c.Request.Context(), account, "Bearer "+accessToken)
	if err == nil && project != "" {
		projectID := project
		if _, err := model.UpdateAccount(account.Id, model.AccountPatch{ProjectID: &projectID}); err != nil {
			_ = err // project discovery is best-effort; the account still works once patched manually
		}
	}

	c.JSON(http.StatusOK, gin.H{"id": account.Id, "externalId": account.ExternalId})
}

// exchangeAuthCode runs the standard Google OAuth2 authorization_code grant,
// mirroring the Token Manager's refresh_token grant against the same
// endpoint (spec §6 token endpoints).
func exchangeAuthCode(ctx context.Context, code string) (refreshToken, accessToken string, err error) {
	redirectURI := strings.TrimRight(config.BaseURL, "/") + "/api/gemini/oauth-callback"
	form := url.Values{
		"client_id":     {config.GeminiClientID},
		"client_secret": {config.GeminiClientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, googleOAuthTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", errors.Wrap(err, "build oauth code exchange request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: time.Duration(config.ConnectTimeoutSeconds) * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", "", errors.Wrap(err, "call google oauth token endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", errors.Errorf("google oauth code exchange failed with status %d", resp.StatusCode)
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", errors.Wrap(err, "decode google oauth token response")
	}
	return parsed.RefreshToken, parsed.AccessToken, nil
}
