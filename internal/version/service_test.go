package version

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dividendlab/screener-cli/internal/model"
)

type memVersionStore struct {
	versions map[model.VersionKind][]model.ConfigVersion
}

func newMemVersionStore() *memVersionStore {
	return &memVersionStore{versions: map[model.VersionKind][]model.ConfigVersion{}}
}

func (m *memVersionStore) LatestVersion(_ context.Context, kind model.VersionKind) (*model.ConfigVersion, error) {
	vs := m.versions[kind]
	if len(vs) == 0 {
		return nil, nil
	}
	v := vs[len(vs)-1]
	return &v, nil
}

func (m *memVersionStore) InsertVersion(_ context.Context, v model.ConfigVersion) error {
	m.versions[v.Kind] = append(m.versions[v.Kind], v)
	return nil
}

type rulesConfig struct {
	Rules []string `json:"rules"`
}

func TestStampFirstVersion(t *testing.T) {
	st := newMemVersionStore()
	svc := NewService(st, zap.NewNop())

	label, err := svc.Stamp(context.Background(), model.VersionKindRules, rulesConfig{Rules: []string{"yield"}})
	require.NoError(t, err)
	require.Equal(t, "v1.0", label)
	require.Len(t, st.versions[model.VersionKindRules], 1)
}

func TestStampUnchangedReusesLabel(t *testing.T) {
	st := newMemVersionStore()
	svc := NewService(st, zap.NewNop())
	ctx := context.Background()

	cfg := rulesConfig{Rules: []string{"yield", "index"}}
	first, err := svc.Stamp(ctx, model.VersionKindRules, cfg)
	require.NoError(t, err)

	again, err := svc.Stamp(ctx, model.VersionKindRules, cfg)
	require.NoError(t, err)
	require.Equal(t, first, again)
	require.Len(t, st.versions[model.VersionKindRules], 1)
}

func TestStampChangeBumpsMinor(t *testing.T) {
	st := newMemVersionStore()
	svc := NewService(st, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Stamp(ctx, model.VersionKindRules, rulesConfig{Rules: []string{"yield"}})
	require.NoError(t, err)

	label, err := svc.Stamp(ctx, model.VersionKindRules, rulesConfig{Rules: []string{"yield", "payout"}})
	require.NoError(t, err)
	require.Equal(t, "v1.1", label)

	label, err = svc.Stamp(ctx, model.VersionKindRules, rulesConfig{Rules: []string{"payout"}})
	require.NoError(t, err)
	require.Equal(t, "v1.2", label)
	require.Len(t, st.versions[model.VersionKindRules], 3)
}

func TestStampKindsAreIndependent(t *testing.T) {
	st := newMemVersionStore()
	svc := NewService(st, zap.NewNop())
	ctx := context.Background()

	rules, err := svc.Stamp(ctx, model.VersionKindRules, rulesConfig{Rules: []string{"yield"}})
	require.NoError(t, err)
	cols, err := svc.Stamp(ctx, model.VersionKindColumns, map[string]string{"ticker_column": "Ticker"})
	require.NoError(t, err)
	require.Equal(t, "v1.0", rules)
	require.Equal(t, "v1.0", cols)
}

func TestStampIgnoresKeyOrder(t *testing.T) {
	st := newMemVersionStore()
	svc := NewService(st, zap.NewNop())
	ctx := context.Background()

	// Stored payload with keys in one order, live config in another.
	require.NoError(t, st.InsertVersion(context.Background(), model.ConfigVersion{
		Kind:    model.VersionKindColumns,
		Version: "v2.4",
		Payload: []byte(`{"b":"2","a":"1"}`),
	}))

	label, err := svc.Stamp(ctx, model.VersionKindColumns, map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	require.Equal(t, "v2.4", label)

	label, err = svc.Stamp(ctx, model.VersionKindColumns, map[string]string{"a": "1", "b": "changed"})
	require.NoError(t, err)
	require.Equal(t, "v2.5", label)
}

func TestStampRejectsMalformedStoredLabel(t *testing.T) {
	st := newMemVersionStore()
	svc := NewService(st, zap.NewNop())

	require.NoError(t, st.InsertVersion(context.Background(), model.ConfigVersion{
		Kind:    model.VersionKindRules,
		Version: "release-3",
		Payload: []byte(`{}`),
	}))

	_, err := svc.Stamp(context.Background(), model.VersionKindRules, rulesConfig{Rules: []string{"x"}})
	require.Error(t, err)
}
