// Package version mints labels for the rule and column configurations.
// Every selection run records the exact configuration it ran under; when
// the live configuration drifts from the last stored one, a new minor
// version is appended.
package version

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dividendlab/screener-cli/internal/model"
	"github.com/dividendlab/screener-cli/internal/store"
)

// Service compares live configuration against the newest stored version
// and appends a bumped one when they differ structurally.
type Service struct {
	store store.VersionStore
	log   *zap.Logger
}

func NewService(st store.VersionStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, log: log}
}

// Stamp returns the version label the current run should record for the
// given configuration. If the configuration matches the latest stored
// version the existing label is reused; otherwise a new minor version is
// inserted and returned. The version history is append-only.
func (s *Service) Stamp(ctx context.Context, kind model.VersionKind, live any) (string, error) {
	normalized, err := normalize(live)
	if err != nil {
		return "", eris.Wrapf(err, "version: normalize live %s config", kind)
	}

	latest, err := s.store.LatestVersion(ctx, kind)
	if err != nil {
		return "", eris.Wrapf(err, "version: load latest %s", kind)
	}

	if latest != nil {
		stored, err := normalizeRaw(latest.Payload)
		if err != nil {
			return "", eris.Wrapf(err, "version: normalize stored %s payload %s", kind, latest.Version)
		}
		if bytes.Equal(normalized, stored) {
			return latest.Version, nil
		}
	}

	next, err := nextLabel(latest)
	if err != nil {
		return "", err
	}
	if err := s.store.InsertVersion(ctx, model.ConfigVersion{
		Kind:      kind,
		Version:   next,
		Payload:   normalized,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", eris.Wrapf(err, "version: insert %s %s", kind, next)
	}

	s.log.Info("configuration changed, new version stamped",
		zap.String("kind", string(kind)),
		zap.String("version", next))
	return next, nil
}

// normalize reduces a configuration value to canonical JSON: struct field
// order from the type, map keys sorted by encoding/json.
func normalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return normalizeRaw(raw)
}

func normalizeRaw(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func nextLabel(latest *model.ConfigVersion) (string, error) {
	if latest == nil {
		return "v1.0", nil
	}
	var major, minor int
	if _, err := fmt.Sscanf(latest.Version, "v%d.%d", &major, &minor); err != nil {
		return "", eris.Wrapf(err, "version: malformed stored label %q", latest.Version)
	}
	return fmt.Sprintf("v%d.%d", major, minor+1), nil
}
