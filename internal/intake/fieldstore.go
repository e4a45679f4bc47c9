package intake

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// FieldStore owns the intake record and its per-field error messages.
// It is not safe for concurrent use; Controller serializes access.
type FieldStore struct {
	record   IntakeRecord
	errors   ValidationErrors
	catalog  *Catalog
	notifier Notifier
}

// NewFieldStore wraps rec. A nil notifier discards notices.
func NewFieldStore(rec IntakeRecord, catalog *Catalog, notifier Notifier) *FieldStore {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &FieldStore{
		record:   rec.Clone(),
		errors:   ValidationErrors{},
		catalog:  catalog,
		notifier: notifier,
	}
}

// Record returns a copy of the current record.
func (s *FieldStore) Record() IntakeRecord {
	return s.record.Clone()
}

// Errors returns a copy of the current field errors.
func (s *FieldStore) Errors() ValidationErrors {
	return s.errors.Clone()
}

// ReplaceErrors overwrites the error map.
func (s *FieldStore) ReplaceErrors(errs ValidationErrors) {
	s.errors = errs.Clone()
}

// Get returns the value stored for f.
func (s *FieldStore) Get(f Field) any {
	return s.record.Value(f)
}

// Set stores value in f and clears any error on f. Values are coerced the
// way a web form submits them: numeric fields accept numbers or numeric
// strings, flags accept booleans or "true"/"false", lists accept string slices.
func (s *FieldStore) Set(f Field, value any) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownField, int(f))
	}
	switch f.Type() {
	case TypeText:
		v, ok := value.(string)
		if !ok {
			return fieldTypeError(f, value)
		}
		*s.record.text(f) = v
	case TypeInt:
		n, err := toFloat(value)
		if err != nil || n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return fieldTypeError(f, value)
		}
		s.record.Identity.Age = int(n)
	case TypeDecimal:
		n, err := toFloat(value)
		if err != nil {
			return fieldTypeError(f, value)
		}
		if f == FieldCurrentWeight {
			s.record.Physiology.CurrentWeight = n
		} else {
			s.record.Physiology.GoalWeight = n
		}
	case TypeBool:
		b, err := toBool(value)
		if err != nil {
			return fieldTypeError(f, value)
		}
		if f == FieldAgreeToTerms {
			s.record.Consent.AgreeToTerms = b
		} else {
			s.record.Consent.AgreeToMarketing = b
		}
	case TypeList:
		list, err := toStrings(value)
		if err != nil {
			return fieldTypeError(f, value)
		}
		list = dedupe(list)
		if f == FieldSelectedServices && !slices.Contains(list, s.catalog.Required().ID) {
			s.notifyRequired()
			return ErrRequiredItem
		}
		*s.record.list(f) = list
	}
	delete(s.errors, f)
	return nil
}

// Toggle adds value to a list field when absent and removes it when present.
// Removing the required line item from the service selection is refused.
func (s *FieldStore) Toggle(f Field, value string) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownField, int(f))
	}
	if f.Type() != TypeList {
		return fieldTypeError(f, value)
	}
	list := s.record.list(f)
	if i := slices.Index(*list, value); i >= 0 {
		if f == FieldSelectedServices && s.catalog.IsRequired(value) {
			s.notifyRequired()
			return ErrRequiredItem
		}
		*list = slices.Delete(slices.Clone(*list), i, i+1)
	} else {
		*list = append(slices.Clone(*list), value)
	}
	delete(s.errors, f)
	return nil
}

func (s *FieldStore) notifyRequired() {
	s.notifier.Notify(NotifyError, fmt.Sprintf("%s is required and cannot be removed.", s.catalog.Required().Name))
}

func fieldTypeError(f Field, value any) error {
	return fmt.Errorf("%w: %s cannot hold %T", ErrFieldType, f.Key(), value)
}

// toFloat rejects NaN and infinities so every stored number stays JSON encodable.
func toFloat(value any) (float64, error) {
	n, err := parseFloat(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, ErrFieldType
	}
	return n, nil
}

func parseFloat(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	}
	return 0, ErrFieldType
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(v))
	}
	return false, ErrFieldType
}

func toStrings(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return slices.Clone(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, ErrFieldType
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, ErrFieldType
}

func dedupe(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}
