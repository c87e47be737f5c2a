package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"struk/internal/cache"
	"struk/internal/core"
	"struk/internal/log"
	"struk/internal/storage"
)

// ProfileService reads and saves the financial profile stored in the user
// document. It shares the receipt store's per-user lock so profile and
// receipt writes never interleave.
type ProfileService struct {
	store  *ReceiptStore
	ttl    time.Duration
	logger *log.Logger
}

func NewProfileService(store *ReceiptStore, ttl time.Duration) *ProfileService {
	return &ProfileService{
		store:  store,
		ttl:    ttl,
		logger: store.logger.WithComponent(log.ComponentProfile),
	}
}

// Get returns the profile or an error matching core.ErrNotFound when the
// user has no document or never saved a profile.
func (p *ProfileService) Get(ctx context.Context, userID string) (core.UserProfile, error) {
	key := cache.ProfileKey(userID)
	cached, hit, err := cache.GetJSON[core.UserProfile](ctx, p.store.cache, key)
	if err != nil {
		p.logger.WarnContext(ctx, "Cache read failed, falling back to store",
			log.FieldCacheKey, key,
			log.FieldError, err)
	} else if hit {
		return cached, nil
	}

	unlock := p.store.locks.RLock(userID)
	defer unlock()

	doc, err := p.store.read(ctx, userID)
	if errors.Is(err, storage.ErrDocumentAbsent) || (err == nil && doc.Profile == nil) {
		return core.UserProfile{}, core.NotFoundf("profile for user %s", userID)
	}
	if err != nil {
		return core.UserProfile{}, err
	}

	if err := cache.SetJSON(ctx, p.store.cache, key, doc.Profile, p.ttl); err != nil {
		p.logger.WarnContext(ctx, "Failed to populate cache",
			log.FieldCacheKey, key,
			log.FieldError, err)
	}
	return *doc.Profile, nil
}

// Income returns the monthly income, zero when no profile exists.
func (p *ProfileService) Income(ctx context.Context, userID string) (core.Money, error) {
	profile, err := p.Get(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, err
	}
	return profile.MonthlyIncome(), nil
}

// Save validates and stores the profile, creating the user document if needed.
func (p *ProfileService) Save(ctx context.Context, userID string, profile core.UserProfile) (core.UserProfile, error) {
	if err := ValidateProfile(&profile); err != nil {
		return core.UserProfile{}, err
	}

	unlock := p.store.locks.Lock(userID)
	defer unlock()

	storeCtx, cancel := p.store.storeContext(ctx)
	defer cancel()

	created := false
	_, err := p.store.docs.UpdateUserDocument(storeCtx, userID, func(doc *core.UserDocument, exists bool) error {
		created = !exists
		saved := profile
		doc.Profile = &saved
		return nil
	})
	if err != nil {
		return core.UserProfile{}, asStoreError(log.OpUpdate, err)
	}
	p.store.invalidate(ctx, userID, cache.ProfileKey(userID))
	// A cached receipts snapshot taken before the document existed says so.
	if created {
		p.store.invalidate(ctx, userID, cache.ReceiptsKey(userID))
	}

	p.logger.InfoContext(ctx, "Profile saved",
		log.FieldOperation, log.OpUpdate,
		log.FieldUserID, userID)
	return profile, nil
}

// ValidateProfile checks required fields and applies the default currency.
func ValidateProfile(p *core.UserProfile) error {
	p.Occupation = strings.TrimSpace(p.Occupation)
	p.FinancialGoals = strings.TrimSpace(p.FinancialGoals)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))

	if p.Occupation == "" {
		return core.MissingField("occupation")
	}
	if p.Income == nil {
		return core.MissingField("income")
	}
	if p.Income.IsNegative() {
		return core.NewValidationError("income", "must not be negative")
	}
	if p.FinancialGoals == "" {
		return core.MissingField("financialGoals")
	}
	if p.Currency == "" {
		p.Currency = core.DefaultCurrency
	}
	return nil
}
