package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAccountTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Account{}))
	return db
}

func withTestDB(t *testing.T) {
	original := DB
	DB = setupAccountTestDB(t)
	t.Cleanup(func() { DB = original })
}

func TestCreateAndGetAccount(t *testing.T) {
	withTestDB(t)

	account := &Account{Label: "acct-1", Type: AccountTypeCodeWhisperer, Enabled: true, RefreshToken: "r"}
	require.NoError(t, CreateAccount(account))
	require.NotZero(t, account.Id)
	require.NotEmpty(t, account.ExternalId)

	got, err := GetAccount(account.Id)
	require.NoError(t, err)
	require.Equal(t, "acct-1", got.Label)
	require.Equal(t, AccountTypeCodeWhisperer, got.Type)
}

func TestListAccountsFiltersDisabledAndType(t *testing.T) {
	withTestDB(t)

	require.NoError(t, CreateAccount(&Account{Label: "cw-enabled", Type: AccountTypeCodeWhisperer, Enabled: true}))
	require.NoError(t, CreateAccount(&Account{Label: "cw-disabled", Type: AccountTypeCodeWhisperer, Enabled: false}))
	require.NoError(t, CreateAccount(&Account{Label: "gemini-enabled", Type: AccountTypeGemini, Enabled: true}))

	all, err := ListAccounts(AccountFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	geminiOnly, err := ListAccounts(AccountFilter{Type: AccountTypeGemini})
	require.NoError(t, err)
	require.Len(t, geminiOnly, 1)
	require.Equal(t, "gemini-enabled", geminiOnly[0].Label)
}

func TestUpdateAccountPartialPatch(t *testing.T) {
	withTestDB(t)

	account := &Account{Label: "original", Type: AccountTypeGemini, Enabled: true, ClientId: "cid"}
	require.NoError(t, CreateAccount(account))

	newLabel := "renamed"
	updated, err := UpdateAccount(account.Id, AccountPatch{Label: &newLabel})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Label)
	require.Equal(t, "cid", updated.ClientId) // unspecified field preserved
}

func TestUpdateTokensStampsStatus(t *testing.T) {
	withTestDB(t)

	account := &Account{Label: "token-acct", Type: AccountTypeCodeWhisperer, Enabled: true}
	require.NoError(t, CreateAccount(account))

	require.NoError(t, UpdateTokens(account.Id, "new-access", "new-refresh", RefreshStatusOK))

	got, err := GetAccount(account.Id)
	require.NoError(t, err)
	require.Equal(t, "new-access", got.AccessToken)
	require.Equal(t, "new-refresh", got.RefreshToken)
	require.Equal(t, RefreshStatusOK, got.LastRefreshStatus)
	require.NotZero(t, got.LastRefreshTime)
}

func TestMarkModelExhaustedAndIsModelAvailable(t *testing.T) {
	withTestDB(t)

	account := &Account{Label: "gemini-quota", Type: AccountTypeGemini, Enabled: true}
	require.NoError(t, CreateAccount(account))

	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, MarkModelExhausted(account.Id, "gemini-2.5-pro", future))

	got, err := GetAccount(account.Id)
	require.NoError(t, err)

	available, err := IsModelAvailable(got, "gemini-2.5-pro")
	require.NoError(t, err)
	require.False(t, available)

	// an unrelated model is unaffected
	available, err = IsModelAvailable(got, "gemini-2.5-flash")
	require.NoError(t, err)
	require.True(t, available)
}

func TestRestoreModelQuotaIfDueSelfHeals(t *testing.T) {
	withTestDB(t)

	account := &Account{Label: "gemini-expired", Type: AccountTypeGemini, Enabled: true}
	require.NoError(t, CreateAccount(account))

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, MarkModelExhausted(account.Id, "gemini-2.5-pro", past))

	got, err := GetAccount(account.Id)
	require.NoError(t, err)

	restored, err := RestoreModelQuotaIfDue(got, "gemini-2.5-pro")
	require.NoError(t, err)
	require.True(t, restored)

	bag, err := got.LoadOther()
	require.NoError(t, err)
	require.Equal(t, 1.0, bag.Quota["gemini-2.5-pro"].RemainingFraction)

	// persisted: a second read reflects the healed entry
	reloaded, err := GetAccount(account.Id)
	require.NoError(t, err)
	available, err := IsModelAvailable(reloaded, "gemini-2.5-pro")
	require.NoError(t, err)
	require.True(t, available)
}

func TestUpdateAccountReenableClearsExhaustedQuota(t *testing.T) {
	withTestDB(t)

	account := &Account{Label: "gemini-reenable", Type: AccountTypeGemini, Enabled: true}
	require.NoError(t, CreateAccount(account))

	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, MarkModelExhausted(account.Id, "gemini-2.5-pro", future))

	disabled := false
	_, err := UpdateAccount(account.Id, AccountPatch{Enabled: &disabled})
	require.NoError(t, err)

	enabled := true
	updated, err := UpdateAccount(account.Id, AccountPatch{Enabled: &enabled})
	require.NoError(t, err)

	bag, err := updated.LoadOther()
	require.NoError(t, err)
	require.Equal(t, 1.0, bag.Quota["gemini-2.5-pro"].RemainingFraction)
}

func TestDeleteAccount(t *testing.T) {
	withTestDB(t)

	account := &Account{Label: "to-delete", Type: AccountTypeCodeWhisperer, Enabled: true}
	require.NoError(t, CreateAccount(account))
	require.NoError(t, DeleteAccount(account.Id))

	_, err := GetAccount(account.Id)
	require.Error(t, err)
}

func TestOtherBagRoundTripsUnknownKeys(t *testing.T) {
	raw := []byte(`{"projectId":"proj-1","futureField":"keep-me"}`)
	var decoded OtherBag
	require.NoError(t, decoded.UnmarshalJSON(raw))
	require.Equal(t, "proj-1", decoded.ProjectID)

	reencoded, err := decoded.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(reencoded), "futureField")
}
