package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbarsync/pkg/config"
	"kbarsync/pkg/connector/core"
	"kbarsync/pkg/errors"
	"kbarsync/pkg/models"
)

type stubSource struct{}

func (s *stubSource) Initialize(ctx context.Context, cfg *config.Config) error { return nil }
func (s *stubSource) Read(ctx context.Context) (core.RowCursor, error)         { return nil, nil }
func (s *stubSource) Close(ctx context.Context) error                          { return nil }
func (s *stubSource) Health(ctx context.Context) error                         { return nil }
func (s *stubSource) Metrics() map[string]interface{}                          { return nil }

type stubDestination struct{}

func (d *stubDestination) Initialize(ctx context.Context, cfg *config.Config) error { return nil }
func (d *stubDestination) BeginTransaction(ctx context.Context) (core.Transaction, error) {
	return nil, nil
}
func (d *stubDestination) EnsureSchema(ctx context.Context) error { return nil }
func (d *stubDestination) UpsertBatch(ctx context.Context, batch []*models.Kbar) error {
	return nil
}
func (d *stubDestination) Close(ctx context.Context) error  { return nil }
func (d *stubDestination) Health(ctx context.Context) error { return nil }
func (d *stubDestination) Metrics() map[string]interface{}  { return nil }

func TestRegisterAndCreateSource(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterSource("stub", func(cfg *config.Config) (core.Source, error) {
		return &stubSource{}, nil
	}))

	assert.True(t, r.HasSource("stub"))
	assert.Equal(t, []string{"stub"}, r.ListSources())

	source, err := r.CreateSource("stub", config.NewConfig())
	require.NoError(t, err)
	assert.NotNil(t, source)
}

func TestRegisterSourceDuplicate(t *testing.T) {
	r := NewRegistry()

	factory := func(cfg *config.Config) (core.Source, error) { return &stubSource{}, nil }
	require.NoError(t, r.RegisterSource("stub", factory))

	err := r.RegisterSource("stub", factory)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRegisterAndCreateDestination(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterDestination("stub", func(cfg *config.Config) (core.Destination, error) {
		return &stubDestination{}, nil
	}))

	assert.True(t, r.HasDestination("stub"))
	assert.Equal(t, []string{"stub"}, r.ListDestinations())

	dest, err := r.CreateDestination("stub", config.NewConfig())
	require.NoError(t, err)
	assert.NotNil(t, dest)
}

func TestCreateUnknownConnector(t *testing.T) {
	r := NewRegistry()

	_, err := r.CreateSource("nope", config.NewConfig())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = r.CreateDestination("nope", config.NewConfig())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
