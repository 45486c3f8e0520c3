package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/uva-judge/internal/models"
)

// JudgedSubmissionRepository persists the verdict history.
type JudgedSubmissionRepository interface {
	Create(ctx context.Context, submission *models.JudgedSubmission) error
	GetByID(ctx context.Context, id string) (models.JudgedSubmission, error)
}

// NewJudgedSubmissionRepository constructs a gorm backed history repository.
func NewJudgedSubmissionRepository(db *gorm.DB) JudgedSubmissionRepository {
	return &judgedSubmissionRepository{db: db}
}

type judgedSubmissionRepository struct {
	db *gorm.DB
}

func (r *judgedSubmissionRepository) Create(ctx context.Context, submission *models.JudgedSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *judgedSubmissionRepository) GetByID(ctx context.Context, id string) (models.JudgedSubmission, error) {
	var submission models.JudgedSubmission
	if err := r.db.WithContext(ctx).First(&submission, "id = ?", id).Error; err != nil {
		return models.JudgedSubmission{}, err
	}
	return submission, nil
}
