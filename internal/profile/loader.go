// Package profile resolves the signed-in identity into the name, level and
// selected module the app displays.
package profile

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"linova-go/internal/cache"
	"linova-go/internal/logger"
	"linova-go/internal/models"
	"linova-go/internal/remote"
)

// FallbackName is shown when nothing better is known.
const FallbackName = "Linova"

const profilesTable = "profiles"

var profileColumns = []string{"id", "name", "level", "current_module"}

type Fetcher interface {
	FetchProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// GatewayFetcher reads profiles through the table API. A missing row is
// not an error: new accounts have no profile yet.
type GatewayFetcher struct {
	Gateway remote.Gateway
}

func (f GatewayFetcher) FetchProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var rows []models.Profile
	q := remote.Query{Table: profilesTable, Columns: profileColumns, Filters: []remote.Filter{remote.Eq("id", userID)}}
	if err := f.Gateway.Select(ctx, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Previous is what the caller held before this load.
type Previous struct {
	Name string
	// LastUserID is the identity whose cache should be cleared on sign-out.
	LastUserID    string
	CurrentUserID string
}

type Result struct {
	Identity       *remote.Identity
	Email          string
	Name           string
	Level          *string
	SelectedModule *string
	Profile        *models.Profile
	// Cleared means there is no identity and all derived state must be reset.
	Cleared bool
}

type Loader struct {
	fetcher Fetcher
	store   cache.Store
	log     *logger.Logger
}

func NewLoader(fetcher Fetcher, store cache.Store, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{fetcher: fetcher, store: store, log: log.With("component", "ProfileLoader")}
}

// Load never fails: a profile fetch error is logged and identity-derived
// defaults are used instead.
func (l *Loader) Load(ctx context.Context, identity *remote.Identity, prev Previous) Result {
	if identity == nil || identity.ID == "" {
		l.clearCache(ctx, prev)
		return Result{Cleared: true, Name: DisplayName("", "", "", "")}
	}

	result := Result{Identity: identity, Email: identity.Email}
	metadataName := strings.TrimSpace(identity.Metadata.Name)
	profileName := ""
	if l.fetcher != nil {
		p, err := l.fetcher.FetchProfile(ctx, identity.ID)
		if err != nil {
			l.log.Warn("profile fetch failed, using identity defaults", "user_id", identity.ID, "error", err)
		} else if p != nil {
			result.Profile = p
			if p.Name != nil {
				profileName = strings.TrimSpace(*p.Name)
			}
			if p.Level != nil && strings.TrimSpace(*p.Level) != "" {
				level := *p.Level
				result.Level = &level
			}
			if p.CurrentModule != nil && strings.TrimSpace(*p.CurrentModule) != "" {
				module := *p.CurrentModule
				result.SelectedModule = &module
			}
		}
	}
	result.Name = DisplayName(profileName, metadataName, prev.Name, identity.Email)
	return result
}

// clearCache removes the per-user entries of the last known identity. When
// no identity was ever known, the catalog keys go too.
func (l *Loader) clearCache(ctx context.Context, prev Previous) {
	if l.store == nil {
		return
	}
	userID := prev.LastUserID
	if userID == "" {
		userID = prev.CurrentUserID
	}
	keys := cache.UserKeys(userID)
	if userID == "" {
		keys = append(keys, cache.GlobalKeys()...)
	}
	if err := l.store.Remove(ctx, keys); err != nil {
		l.log.Warn("cache clear failed", "user_id", userID, "error", err)
	}
}

// DisplayName picks the first non-empty of the profile name, the metadata
// name, the previous name and a name derived from the email address.
func DisplayName(profileName, metadataName, previousName, email string) string {
	for _, candidate := range []string{profileName, metadataName, previousName, NameFromEmail(email)} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return FallbackName
}

// NameFromEmail turns "jane.doe@x.com" into "Jane".
func NameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	tokens := strings.FieldsFunc(local, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(tokens) == 0 {
		return ""
	}
	return cases.Title(language.Und).String(tokens[0])
}
