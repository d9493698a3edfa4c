package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariusreyes/gitvault/internal/common"
	pkgauth "github.com/dariusreyes/gitvault/pkg/auth"
	"github.com/dariusreyes/gitvault/pkg/types"
)

// Service manages the shared service credentials presented by the trusted
// upstream proxy. It has no notion of end-user identity: callers are
// authenticated by credential, and the owner of any given request is
// whatever the proxy asserts in the X-User-Id header.
type Service struct {
	db    *common.Database
	cache *common.Cache
}

// NewService creates a new credential service
func NewService(db *common.Database, cache *common.Cache) *Service {
	return &Service{db: db, cache: cache}
}

// IssueCredential creates a new service credential and returns the plaintext
// value once; only its hash is persisted.
func (s *Service) IssueCredential(ctx context.Context, label string) (*types.ServiceCredential, string, error) {
	plaintext, err := pkgauth.GenerateServiceCredential()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate credential: %w", err)
	}

	credential := &types.ServiceCredential{
		Label:    label,
		KeyHash:  pkgauth.HashCredential(plaintext),
		IsActive: true,
	}

	if err := s.db.WithContext(ctx).Create(credential).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create service credential: %w", err)
	}

	return credential, plaintext, nil
}

// ValidateCredential checks a presented secret against the static bootstrap
// key first, then against issued ServiceCredential rows, bumping the
// matching row's last-used timestamp on success.
func (s *Service) ValidateCredential(ctx context.Context, presented string, staticKey string) (bool, error) {
	if staticKey != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(staticKey)) == 1 {
		return true, nil
	}

	keyHash := pkgauth.HashCredential(presented)
	cacheKey := fmt.Sprintf("servicecredential:%s", keyHash)

	if s.cache != nil {
		var cachedOK bool
		if err := s.cache.Get(ctx, cacheKey, &cachedOK); err == nil && cachedOK {
			return true, nil
		}
	}

	var credential types.ServiceCredential
	if err := s.db.WithContext(ctx).Where("key_hash = ? AND is_active = ?", keyHash, true).First(&credential).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to validate credential: %w", err)
	}

	now := time.Now()
	credential.LastUsedAt = &now
	s.db.WithContext(ctx).Model(&credential).Update("last_used_at", now)

	if s.cache != nil {
		// cache is an optimization, not a correctness boundary
		_ = s.cache.Set(ctx, cacheKey, true, 5*time.Minute)
	}

	return true, nil
}

// RevokeCredential deactivates a service credential
func (s *Service) RevokeCredential(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&types.ServiceCredential{}).
		Where("id = ?", id).
		Update("is_active", false)

	if result.Error != nil {
		return fmt.Errorf("failed to revoke credential: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("service credential not found")
	}
	return nil
}

// ListCredentials returns all issued service credentials (without secrets)
func (s *Service) ListCredentials(ctx context.Context) ([]*types.ServiceCredential, error) {
	var credentials []*types.ServiceCredential
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&credentials).Error; err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return credentials, nil
}
