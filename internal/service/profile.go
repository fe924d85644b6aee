package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/store"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// ErrUnknownModel is returned when a profile update names a model that
// is not in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// ProfileService reads and updates per-user model preferences.
type ProfileService struct {
	kv              store.KV
	catalog         []model.ModelInfo
	defaultProvider string
	defaultModel    string
	logger          *logger.Logger
	now             func() time.Time
}

// NewProfileService creates a profile service. New users get
// defaultProvider and defaultModel.
func NewProfileService(kv store.KV, catalog []model.ModelInfo, defaultProvider, defaultModel string, log *logger.Logger) *ProfileService {
	return &ProfileService{
		kv:              kv,
		catalog:         catalog,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		logger:          log,
		now:             time.Now,
	}
}

// Models returns the selectable models.
func (s *ProfileService) Models() []model.ModelInfo {
	return s.catalog
}

// Get returns userID's profile, creating the default on first contact.
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	data, err := s.kv.Get(ctx, store.ProfileKey(userID))
	if err == nil {
		var p model.UserProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		return &p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	now := s.now().UTC()
	p := &model.UserProfile{
		UserID:    userID,
		Provider:  s.defaultProvider,
		Model:     s.defaultModel,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile created", zap.String("user_id", userID), zap.String("model", p.Model))
	return p, nil
}

// Update changes userID's model. The provider is taken from the catalog
// when the request omits it.
func (s *ProfileService) Update(ctx context.Context, userID string, req *model.UpdateProfileRequest) (*model.UserProfile, error) {
	info, ok := s.lookup(req.Provider, req.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Provider = info.Provider
	p.Model = info.Model
	p.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", zap.String("user_id", userID), zap.String("model", p.Model))
	return p, nil
}

func (s *ProfileService) lookup(provider, name string) (model.ModelInfo, bool) {
	for _, m := range s.catalog {
		if m.Model == name && (provider == "" || m.Provider == provider) {
			return m, true
		}
	}
	return model.ModelInfo{}, false
}

func (s *ProfileService) save(ctx context.Context, p *model.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, store.ProfileKey(p.UserID), data); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
