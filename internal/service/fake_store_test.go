package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"keymint/internal/models"
	"keymint/internal/store"
)

// fakeLicenseStore is an in-memory store.LicenseStore whose Activate holds
// the same contract as the SQL conditional update: the pending check and
// the bind happen under one lock, so it races correctly in tests.
type fakeLicenseStore struct {
	mu       sync.Mutex
	licenses map[string]*models.License
}

func newFakeLicenseStore() *fakeLicenseStore {
	return &fakeLicenseStore{licenses: make(map[string]*models.License)}
}

func (s *fakeLicenseStore) Create(ctx context.Context, license *models.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.licenses[license.Key]; ok {
		return fmt.Errorf("%w: license key", store.ErrDuplicate)
	}
	cp := *license
	s.licenses[license.Key] = &cp
	return nil
}

// CreateBatch matches the transactional contract: the whole batch is
// checked and inserted under one lock, so a collision persists nothing.
func (s *fakeLicenseStore) CreateBatch(ctx context.Context, licenses []*models.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range licenses {
		if _, ok := s.licenses[l.Key]; ok {
			return fmt.Errorf("%w: license key", store.ErrDuplicate)
		}
	}
	for _, l := range licenses {
		cp := *l
		s.licenses[l.Key] = &cp
	}
	return nil
}

func (s *fakeLicenseStore) get(key string) (*models.License, error) {
	l, ok := s.licenses[key]
	if !ok {
		return nil, fmt.Errorf("%w: license", store.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *fakeLicenseStore) GetByKey(ctx context.Context, key string) (*models.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

func (s *fakeLicenseStore) GetByKeyAndDevice(ctx context.Context, key, deviceID string) (*models.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[key]
	if !ok || l.DeviceID == nil || *l.DeviceID != deviceID {
		return nil, fmt.Errorf("%w: license", store.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *fakeLicenseStore) Activate(ctx context.Context, key, deviceID, origin string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[key]
	if !ok || l.Activated {
		return false, nil
	}
	l.DeviceID = &deviceID
	l.Activated = true
	l.ActivatedAt = &at
	l.ActivationOrigin = &origin
	return true, nil
}

func (s *fakeLicenseStore) SetBlocked(ctx context.Context, key string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[key]
	if !ok {
		return fmt.Errorf("%w: license", store.ErrNotFound)
	}
	l.Blocked = blocked
	return nil
}

func (s *fakeLicenseStore) ResetDevice(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[key]
	if !ok {
		return fmt.Errorf("%w: license", store.ErrNotFound)
	}
	l.DeviceID = nil
	l.Activated = false
	l.ActivatedAt = nil
	l.ActivationOrigin = nil
	return nil
}

func (s *fakeLicenseStore) Extend(ctx context.Context, key string, days int) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[key]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: license", store.ErrNotFound)
	}
	if l.ExpiresAt == nil {
		return time.Time{}, store.ErrNotExtensible
	}
	base := *l.ExpiresAt
	if now := time.Now(); base.Before(now) {
		base = now
	}
	newExpiry := base.AddDate(0, 0, days)
	l.ExpiresAt = &newExpiry
	return newExpiry, nil
}

func (s *fakeLicenseStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.licenses[key]; !ok {
		return fmt.Errorf("%w: license", store.ErrNotFound)
	}
	delete(s.licenses, key)
	return nil
}

func (s *fakeLicenseStore) List(ctx context.Context, filter models.ListFilter) ([]models.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.License
	for _, l := range s.licenses {
		if filter.Class != "" && l.Class != filter.Class {
			continue
		}
		if filter.Search != "" && !fakeMatches(l, filter.Search) {
			continue
		}
		out = append(out, *l)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func fakeMatches(l *models.License, search string) bool {
	s := strings.ToLower(search)
	if strings.Contains(strings.ToLower(l.Key), s) || strings.Contains(strings.ToLower(l.Notes), s) {
		return true
	}
	return l.DeviceID != nil && strings.Contains(strings.ToLower(*l.DeviceID), s)
}

func (s *fakeLicenseStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.licenses), nil
}
