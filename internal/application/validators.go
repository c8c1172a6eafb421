package application

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

// MaxIDLength bounds unit and stage identifiers.
const MaxIDLength = 64

// RegisterProfileValidators registers the custom tags used by
// ProfileConfig: semver, unitid and modelformat.
func RegisterProfileValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("unitid", validateUnitID); err != nil {
		return fmt.Errorf("failed to register unitid validator: %w", err)
	}
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}
	return nil
}

// validateSemver accepts X.Y.Z with non-negative integer parts.
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	if err != nil || n != 3 || major < 0 || minor < 0 || patch < 0 {
		return false
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch) == value
}

// validateUnitID accepts a lower-case letter followed by lower-case
// letters, digits, '_' or '-'.
func validateUnitID(fl validator.FieldLevel) bool {
	return isUnitID(fl.Field().String())
}

func isUnitID(id string) bool {
	if id == "" || len(id) > MaxIDLength {
		return false
	}
	for i, ch := range id {
		switch {
		case ch >= 'a' && ch <= 'z':
		case i > 0 && (ch >= '0' && ch <= '9' || ch == '_' || ch == '-'):
		default:
			return false
		}
	}
	return true
}

// validateModelFormat accepts provider/model, both parts non-empty.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}
	provider, name, ok := strings.Cut(model, "/")
	return ok && provider != "" && name != ""
}

// validateSemantics checks what struct tags cannot: id uniqueness across
// units and stages, stage references, unit placement and registered types.
// Every problem found is reported in one *domain.ValidationError.
func validateSemantics(config *ProfileConfig, registry ports.UnitRegistry) error {
	verr := domain.NewValidationError("profile " + config.Metadata.Name)
	ids := make(map[string]string)

	unitIDs := make(map[string]struct{}, len(config.Units))
	for _, u := range config.Units {
		if kind, exists := ids[u.ID]; exists {
			verr.AddError(fmt.Sprintf("duplicate ID %q: already used by %s", u.ID, kind))
			continue
		}
		ids[u.ID] = "unit"
		unitIDs[u.ID] = struct{}{}

		if registry != nil && !registry.IsRegistered(u.Type) {
			verr.AddError(fmt.Sprintf("unit %s: unknown type %q", u.ID, u.Type))
		}
	}

	placed := make(map[string]string)
	for _, s := range config.Stages {
		if kind, exists := ids[s.ID]; exists {
			verr.AddError(fmt.Sprintf("duplicate ID %q: already used by %s", s.ID, kind))
		} else {
			ids[s.ID] = "stage"
		}

		for _, id := range s.Units {
			if _, exists := unitIDs[id]; !exists {
				verr.AddError(fmt.Sprintf("stage %s references non-existent unit: %s", s.ID, id))
				continue
			}
			if other, exists := placed[id]; exists {
				verr.AddError(fmt.Sprintf("unit %s is placed in both stage %s and stage %s", id, other, s.ID))
				continue
			}
			placed[id] = s.ID
		}
	}

	for _, u := range config.Units {
		if _, ok := placed[u.ID]; !ok {
			verr.AddError(fmt.Sprintf("unit %s is not placed in any stage", u.ID))
		}
	}

	if len(config.Reducer) > 0 {
		if _, err := domain.ParseReducerOptions(config.Reducer); err != nil {
			verr.AddError(fmt.Sprintf("reducer: %v", err))
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}
