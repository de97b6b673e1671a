// Package catalog provides the marketplace listing surface: categories,
// service listings, reviews, profiles and their image uploads.
package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/comunihub/marketplace-client/internal/backend"
	"github.com/comunihub/marketplace-client/internal/model"
	"github.com/comunihub/marketplace-client/pkg/logger"
)

// Backend is the slice of the backend client the catalog uses.
type Backend interface {
	Select(ctx context.Context, table string, q backend.Query, dest any) error
	Insert(ctx context.Context, table string, row any) error
	Update(ctx context.Context, table string, patch any, filters ...backend.Filter) error
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	PublicURL(bucket, path string) string
}

// Service handles catalog operations.
type Service struct {
	backend Backend
	logger  *logger.Logger
}

// NewService creates a catalog service.
func NewService(b Backend, log *logger.Logger) *Service {
	return &Service{backend: b, logger: log}
}

// Categories lists up to limit browsable categories.
func (s *Service) Categories(ctx context.Context, limit int) ([]model.Category, error) {
	var categories []model.Category
	err := s.backend.Select(ctx, "categories", backend.Query{
		Columns: "id,name",
		Limit:   limit,
	}, &categories)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return categories, nil
}

// Get fetches one service listing.
func (s *Service) Get(ctx context.Context, serviceID int64) (*model.Service, error) {
	var services []model.Service
	err := s.backend.Select(ctx, "services", backend.Query{
		Filters: []backend.Filter{backend.Eq("id", strconv.FormatInt(serviceID, 10))},
		Limit:   1,
	}, &services)
	if err != nil {
		return nil, fmt.Errorf("failed to load service %d: %w", serviceID, err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %d not found", serviceID)
	}
	return &services[0], nil
}

// Create publishes a new listing, uploading its image first when provided.
func (s *Service) Create(ctx context.Context, svc *model.Service, image []byte, imageContentType string) error {
	if image != nil {
		path := fmt.Sprintf("%s/%d.jpg", svc.ProviderID, svc.CategoryID)
		if err := s.backend.Upload(ctx, "service_images", path, image, imageContentType); err != nil {
			return fmt.Errorf("failed to upload listing image: %w", err)
		}
		svc.ImageURL = s.backend.PublicURL("service_images", path)
	}
	if err := s.backend.Insert(ctx, "services", svc); err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// Reviews lists the reviews of a service, newest first.
func (s *Service) Reviews(ctx context.Context, serviceID int64) ([]model.Review, error) {
	var reviews []model.Review
	err := s.backend.Select(ctx, "reviews", backend.Query{
		Filters: []backend.Filter{backend.Eq("service_id", strconv.FormatInt(serviceID, 10))},
		Order:   &backend.Order{Column: "created_at"},
	}, &reviews)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	return reviews, nil
}

// SubmitReview stores a review for a service.
func (s *Service) SubmitReview(ctx context.Context, review *model.Review) error {
	if review.Rating < 1 || review.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", review.Rating)
	}
	if err := s.backend.Insert(ctx, "reviews", review); err != nil {
		return fmt.Errorf("failed to submit review: %w", err)
	}
	return nil
}

// AverageRating computes the mean rating, 0 when there are no reviews.
func AverageRating(reviews []model.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}

// Profile fetches a user's public profile.
func (s *Service) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	var profiles []model.Profile
	err := s.backend.Select(ctx, "profiles", backend.Query{
		Filters: []backend.Filter{backend.Eq("id", userID)},
		Limit:   1,
	}, &profiles)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("profile %s not found", userID)
	}
	return &profiles[0], nil
}

// UpdateProfile saves profile changes for the owning user.
func (s *Service) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	if err := s.backend.Update(ctx, "profiles", profile, backend.Eq("id", profile.ID)); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// UploadAvatar stores a new avatar and records its public URL on the
// profile.
func (s *Service) UploadAvatar(ctx context.Context, userID string, image []byte, contentType string) (string, error) {
	path := userID + ".jpg"
	if err := s.backend.Upload(ctx, "avatars", path, image, contentType); err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}
	url := s.backend.PublicURL("avatars", path)
	patch := map[string]string{"avatar_url": url}
	if err := s.backend.Update(ctx, "profiles", patch, backend.Eq("id", userID)); err != nil {
		return "", fmt.Errorf("failed to record avatar: %w", err)
	}
	return url, nil
}
