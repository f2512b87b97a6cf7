package model

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"gorm.io/gorm"

	"github.com/relaygate/relaygate/common/helper"
	"github.com/relaygate/relaygate/common/logger"
	"github.com/relaygate/relaygate/common/random"
)

const (
	AccountTypeCodeWhisperer = "codewhisperer"
	AccountTypeGemini        = "gemini"
)

const (
	RefreshStatusNone          = ""
	RefreshStatusOK            = "success"
	RefreshStatusFailedNetwork = "failed_network"
)

// QuotaEntry is one model's slice of a Gemini account's Quota Ledger (spec §3).
type QuotaEntry struct {
	RemainingFraction float64   `json:"remainingFraction"`
	RemainingPercent  float64   `json:"remainingPercent"`
	ResetTime         time.Time `json:"resetTime"`
}

// Suspension records why the Router took an account out of rotation.
type Suspension struct {
	Suspended   bool      `json:"suspended"`
	SuspendedAt time.Time `json:"suspendedAt,omitzero"`
	Reason      string    `json:"reason,omitempty"`
}

// OtherBag is the extensibility bag attached to every Account. Unknown keys
// round-trip through RawMessage so components added later don't clobber each
// other's fields (spec §9 "in-place JSON mutation" note).
type OtherBag struct {
	ProjectID   string                `json:"projectId,omitempty"`
	APIEndpoint string                `json:"apiEndpoint,omitempty"`
	Quota       map[string]QuotaEntry `json:"creditsInfo,omitempty"`
	Suspension  Suspension            `json:"suspended,omitempty"`

	extra map[string]json.RawMessage `json:"-"`
}

func (b OtherBag) MarshalJSON() ([]byte, error) {
	type alias OtherBag
	base, err := json.Marshal(alias(b))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(b.extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, errors.WithStack(err)
	}
	for k, v := range b.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (b *OtherBag) UnmarshalJSON(data []byte) error {
	type alias OtherBag
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return errors.WithStack(err)
	}
	*b = OtherBag(a)

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	known := map[string]bool{"projectId": true, "apiEndpoint": true, "creditsInfo": true, "suspended": true}
	b.extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			b.extra[k] = v
		}
	}
	return nil
}

// Account is one provider identity registered in the Account Store (spec §3).
type Account struct {
	Id                int        `json:"id" gorm:"primaryKey"`
	ExternalId        string     `json:"externalId" gorm:"uniqueIndex;column:external_id"`
	Label             string     `json:"label"`
	Type              string     `json:"type" gorm:"index;default:codewhisperer"`
	Enabled           bool       `json:"enabled" gorm:"default:true"`
	ClientId          string     `json:"clientId" gorm:"column:client_id"`
	ClientSecret      string     `json:"clientSecret" gorm:"column:client_secret"`
	RefreshToken      string     `json:"refreshToken" gorm:"column:refresh_token;type:text"`
	AccessToken       string     `json:"accessToken" gorm:"column:access_token;type:text"`
	LastRefreshTime   int64      `json:"lastRefreshTime" gorm:"column:last_refresh_time;bigint"`
	LastRefreshStatus string     `json:"lastRefreshStatus" gorm:"column:last_refresh_status"`
	ProfileArn        string     `json:"profileArn" gorm:"column:profile_arn"`
	Other             string     `json:"-" gorm:"column:other;type:text"`
	CreatedAt         int64      `json:"createdAt" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt         int64      `json:"updatedAt" gorm:"bigint;autoUpdateTime:milli"`
}

// rowLocks guards per-account mutating operations (spec §4.1 "row-level
// exclusive lock"); sharded by account id so unrelated accounts never block
// each other.
var rowLocks sync.Map // map[int]*sync.Mutex

func lockFor(id int) *sync.Mutex {
	v, _ := rowLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// LoadOther decodes the extensibility bag, tolerating an empty/absent value.
func (a *Account) LoadOther() (OtherBag, error) {
	var bag OtherBag
	if strings.TrimSpace(a.Other) == "" {
		return bag, nil
	}
	if err := json.Unmarshal([]byte(a.Other), &bag); err != nil {
		return bag, errors.Wrapf(err, "unmarshal other bag for account %d", a.Id)
	}
	return bag, nil
}

func (a *Account) saveOther(bag OtherBag) error {
	raw, err := json.Marshal(bag)
	if err != nil {
		return errors.Wrapf(err, "marshal other bag for account %d", a.Id)
	}
	a.Other = string(raw)
	return nil
}

// AccountFilter narrows ListAccounts by provider type; empty matches all.
type AccountFilter struct {
	Type string
}

// ListAccounts returns enabled accounts, most recently created first
// (spec §4.1 list).
func ListAccounts(filter AccountFilter) ([]*Account, error) {
	var accounts []*Account
	q := DB.Where("enabled = ?", true).Order("created_at desc")
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if err := q.Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "list accounts")
	}
	return accounts, nil
}

// ListAllAccounts returns every account, enabled or not, for the admin API.
func ListAllAccounts() ([]*Account, error) {
	var accounts []*Account
	if err := DB.Order("created_at desc").Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "list all accounts")
	}
	return accounts, nil
}

// GetAccount fetches one account by internal id (spec §4.1 get).
func GetAccount(id int) (*Account, error) {
	var account Account
	if err := DB.First(&account, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get account %d", id)
	}
	return &account, nil
}

// CreateAccount inserts a new account, stamping a UUID identity when absent
// (spec §4.1 create, §3 "identity: opaque id").
func CreateAccount(account *Account) error {
	if account.ExternalId == "" {
		account.ExternalId = random.GetUUID()
	}
	if account.Type == "" {
		account.Type = AccountTypeCodeWhisperer
	}
	if err := validateProfileArn(account.Type, account.ProfileArn); err != nil {
		return err
	}
	enabled := account.Enabled
	if err := DB.Create(account).Error; err != nil {
		return errors.Wrapf(err, "create account external_id=%s", account.ExternalId)
	}
	// gorm skips a false Enabled on insert because the column has a default,
	// so a disabled account is written explicitly.
	if !enabled {
		if err := DB.Model(account).Update("enabled", false).Error; err != nil {
			return errors.Wrapf(err, "disable account external_id=%s", account.ExternalId)
		}
		account.Enabled = false
	}
	return nil
}

// validateProfileArn rejects a malformed profileArn up front instead of
// letting the CodeWhisperer wire request fail on the first request this
// account serves.
func validateProfileArn(accountType, profileArn string) error {
	if accountType != AccountTypeCodeWhisperer || profileArn == "" {
		return nil
	}
	if !arn.IsARN(profileArn) {
		return errors.Errorf("profileArn %q is not a valid ARN", profileArn)
	}
	if _, err := arn.Parse(profileArn); err != nil {
		return errors.Wrapf(err, "parse profileArn %q", profileArn)
	}
	return nil
}

// AccountPatch carries the subset of fields an admin update may change;
// nil pointers mean "leave as-is" (spec §4.1 "update is partial").
type AccountPatch struct {
	Label        *string
	Enabled      *bool
	ClientId     *string
	ClientSecret *string
	RefreshToken *string
	ProfileArn   *string
	ProjectID    *string
	APIEndpoint  *string
}

// UpdateAccount applies a partial patch under the account's row lock. When
// an account transitions disabled->enabled, any exhausted quota markers and
// any suspension record are cleared so a re-enabled account is immediately
// usable (ambient stack, SPEC_FULL.md §4 supplemented feature).
func UpdateAccount(id int, patch AccountPatch) (*Account, error) {
	lock := lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	account, err := GetAccount(id)
	if err != nil {
		return nil, err
	}

	wasEnabled := account.Enabled
	if patch.Label != nil {
		account.Label = *patch.Label
	}
	if patch.Enabled != nil {
		account.Enabled = *patch.Enabled
	}
	if patch.ClientId != nil {
		account.ClientId = *patch.ClientId
	}
	if patch.ClientSecret != nil {
		account.ClientSecret = *patch.ClientSecret
	}
	if patch.RefreshToken != nil {
		account.RefreshToken = *patch.RefreshToken
	}
	if patch.ProfileArn != nil {
		if err := validateProfileArn(account.Type, *patch.ProfileArn); err != nil {
			return nil, err
		}
		account.ProfileArn = *patch.ProfileArn
	}

	if patch.ProjectID != nil || patch.APIEndpoint != nil {
		bag, err := account.LoadOther()
		if err != nil {
			return nil, err
		}
		if patch.ProjectID != nil {
			bag.ProjectID = *patch.ProjectID
		}
		if patch.APIEndpoint != nil {
			bag.APIEndpoint = *patch.APIEndpoint
		}
		if err := account.saveOther(bag); err != nil {
			return nil, err
		}
	}

	if !wasEnabled && account.Enabled {
		if err := clearExhaustedQuota(account); err != nil {
			logger.Logger.Warn("failed to clear quota on re-enable",
				zap.Int("account_id", id), zap.Error(err))
		}
	}

	if err := DB.Save(account).Error; err != nil {
		return nil, errors.Wrapf(err, "save account %d", id)
	}
	return account, nil
}

func clearExhaustedQuota(account *Account) error {
	bag, err := account.LoadOther()
	if err != nil {
		return err
	}
	if len(bag.Quota) == 0 && !bag.Suspension.Suspended {
		return nil
	}
	for model, entry := range bag.Quota {
		if entry.RemainingFraction == 0 {
			entry.RemainingFraction = 1.0
			entry.RemainingPercent = 100
			bag.Quota[model] = entry
		}
	}
	bag.Suspension = Suspension{}
	return account.saveOther(bag)
}

// DeleteAccount removes an account permanently (spec §4.1 delete).
func DeleteAccount(id int) error {
	lock := lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := DB.Delete(&Account{}, "id = ?", id).Error; err != nil {
		return errors.Wrapf(err, "delete account %d", id)
	}
	return nil
}

// UpdateTokens is the Token Manager's write path: stamps the refreshed
// access/refresh tokens and the refresh status atomically (spec §4.1
// updateTokens).
func UpdateTokens(id int, access string, refresh string, status string) error {
	lock := lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	updates := map[string]any{
		"access_token":        access,
		"last_refresh_time":   helper.GetTimestamp(),
		"last_refresh_status": status,
	}
	if refresh != "" {
		updates["refresh_token"] = refresh
	}
	if err := DB.Model(&Account{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errors.Wrapf(err, "update tokens for account %d", id)
	}
	return nil
}

// MarkModelExhausted writes a zeroed-out quota ledger entry for the given
// model (spec §4.1 markModelExhausted, §3 Quota Ledger).
func MarkModelExhausted(id int, modelID string, resetTime time.Time) error {
	lock := lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	account, err := GetAccount(id)
	if err != nil {
		return err
	}
	bag, err := account.LoadOther()
	if err != nil {
		return err
	}
	if bag.Quota == nil {
		bag.Quota = make(map[string]QuotaEntry)
	}
	bag.Quota[modelID] = QuotaEntry{RemainingFraction: 0, RemainingPercent: 0, ResetTime: resetTime}
	if err := account.saveOther(bag); err != nil {
		return err
	}
	if err := DB.Model(&Account{}).Where("id = ?", id).Update("other", account.Other).Error; err != nil {
		return errors.Wrapf(err, "persist quota ledger for account %d", id)
	}
	return nil
}

// SetQuotaSnapshot overwrites a model's quota entry with a fresh reading from
// the provider, e.g. after a rate-limited 429 that did not exhaust quota
// (spec §3 "remainingFraction > 0.03 on a 429 ... fresh snapshot").
func SetQuotaSnapshot(id int, modelID string, fraction float64, percent float64, resetTime time.Time) error {
	lock := lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	account, err := GetAccount(id)
	if err != nil {
		return err
	}
	bag, err := account.LoadOther()
	if err != nil {
		return err
	}
	if bag.Quota == nil {
		bag.Quota = make(map[string]QuotaEntry)
	}
	bag.Quota[modelID] = QuotaEntry{RemainingFraction: fraction, RemainingPercent: percent, ResetTime: resetTime}
	if err := account.saveOther(bag); err != nil {
		return err
	}
	if err := DB.Model(&Account{}).Where("id = ?", id).Update("other", account.Other).Error; err != nil {
		return errors.Wrapf(err, "persist quota snapshot for account %d", id)
	}
	return nil
}

// Suspend marks an account disabled with a reason; the Upstream Client calls
// it on a TEMPORARILY_SUSPENDED 401/403 (spec §3 "a suspended account has
// enabled = false").
func Suspend(id int, reason string) error {
	lock := lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	account, err := GetAccount(id)
	if err != nil {
		return err
	}
	bag, err := account.LoadOther()
	if err != nil {
		return err
	}
	bag.Suspension = Suspension{Suspended: true, SuspendedAt: time.Now().UTC(), Reason: reason}
	if err := account.saveOther(bag); err != nil {
		return err
	}
	if err := DB.Model(&Account{}).Where("id = ?", id).Updates(map[string]any{
		"enabled": false,
		"other":   account.Other,
	}).Error; err != nil {
		return errors.Wrapf(err, "suspend account %d", id)
	}
	return nil
}

// RestoreModelQuotaIfDue self-heals an expired exhaustion marker, returning
// true when it rewrote the entry (spec §4.1 restoreModelQuotaIfDue, §3
// "ledger self-heals on next read").
func RestoreModelQuotaIfDue(account *Account, modelID string) (bool, error) {
	bag, err := account.LoadOther()
	if err != nil {
		return false, err
	}
	entry, ok := bag.Quota[modelID]
	if !ok || entry.RemainingFraction != 0 {
		return false, nil
	}
	if time.Now().UTC().Before(entry.ResetTime) {
		return false, nil
	}

	lock := lockFor(account.Id)
	lock.Lock()
	defer lock.Unlock()

	bag.Quota[modelID] = QuotaEntry{RemainingFraction: 1.0, RemainingPercent: 100}
	if err := account.saveOther(bag); err != nil {
		return false, err
	}
	if err := DB.Model(&Account{}).Where("id = ?", account.Id).Update("other", account.Other).Error; err != nil {
		return false, errors.Wrapf(err, "restore quota for account %d model %s", account.Id, modelID)
	}
	return true, nil
}

// IsModelAvailable reports whether account may serve modelID, self-healing an
// expired exhaustion marker first (spec §4.1 isModelAvailable).
func IsModelAvailable(account *Account, modelID string) (bool, error) {
	if _, err := RestoreModelQuotaIfDue(account, modelID); err != nil {
		return false, err
	}
	bag, err := account.LoadOther()
	if err != nil {
		return false, err
	}
	entry, ok := bag.Quota[modelID]
	if !ok {
		return true, nil
	}
	if entry.RemainingFraction == 0 && time.Now().UTC().Before(entry.ResetTime) {
		return false, nil
	}
	return true, nil
}

// migrateAccountTypeColumn adds the type column with its default when the
// persisted table predates it (spec §4.1 "Schema migration on startup").
func migrateAccountTypeColumn(db *gorm.DB) error {
	if db.Migrator().HasColumn(&Account{}, "type") {
		return nil
	}
	if err := db.Migrator().AddColumn(&Account{}, "type"); err != nil {
		return errors.Wrap(err, "add type column to accounts")
	}
	if err := db.Model(&Account{}).Where("type = ? OR type IS NULL", "").
		Update("type", AccountTypeCodeWhisperer).Error; err != nil {
		return errors.Wrap(err, "backfill accounts.type")
	}
	return nil
}
