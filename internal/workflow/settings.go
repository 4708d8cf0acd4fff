package workflow

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/models"
)

// ValidatePatch checks the fields a settings form may send.
func ValidatePatch(p models.ConfigPatch) error {
	freqs := make([]any, len(models.Frequencies))
	for i, f := range models.Frequencies {
		freqs[i] = f
	}
	fresh := make([]any, len(models.Freshnesses))
	for i, f := range models.Freshnesses {
		fresh[i] = f
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Frequency, validation.NilOrNotEmpty, validation.In(freqs...)),
		validation.Field(&p.IntelligenceFreshness, validation.NilOrNotEmpty, validation.In(fresh...)),
		validation.Field(&p.GHRepo, validation.By(validRepo)),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrValidation, err.Error())
	}
	return nil
}

func validRepo(value any) error {
	repo, _ := value.(*string)
	if repo == nil || *repo == "" {
		return nil
	}
	owner, name, ok := strings.Cut(*repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return validation.NewError("validation_repo_format", "must be in owner/name form")
	}
	return nil
}

// SaveSettings validates and merges patch into the shared SystemConfig.
// ifRevision is the revision the form was loaded with.
func (p *Panel) SaveSettings(ctx context.Context, patch models.ConfigPatch, ifRevision int64) (models.SystemConfig, error) {
	if patch.GHRepo != nil {
		trimmed := strings.TrimSpace(*patch.GHRepo)
		patch.GHRepo = &trimmed
	}
	if patch.GHPAT != nil {
		trimmed := strings.TrimSpace(*patch.GHPAT)
		patch.GHPAT = &trimmed
	}
	if err := ValidatePatch(patch); err != nil {
		return models.SystemConfig{}, err
	}
	return p.store.MergeConfig(ctx, patch, ifRevision)
}
