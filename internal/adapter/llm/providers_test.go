package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

func TestProviders_AddAndNames(t *testing.T) {
	p := NewProviders()
	require.NoError(t, p.Add("work", &mockProvider{name: "openai"}))
	require.NoError(t, p.Add("backup", &mockProvider{name: "openai"}))
	assert.Error(t, p.Add("work", &mockProvider{name: "bedrock"}))
	assert.Equal(t, []string{"work", "backup"}, p.Names())

	names := p.Names()
	names[0] = "changed"
	assert.Equal(t, "work", p.Names()[0])
}

func TestProviders_ChainWithoutFallbacks(t *testing.T) {
	p := NewProviders()
	primary := &mockProvider{name: "primary"}
	require.NoError(t, p.Add("primary", primary))

	got, err := p.Chain("primary", nil, newTestLogger())
	require.NoError(t, err)
	assert.Same(t, primary, got)

	_, err = p.Chain("missing", nil, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestProviders_ChainFailsOver(t *testing.T) {
	p := NewProviders()
	require.NoError(t, p.Add("primary", failing("primary", domain.ErrRateLimit)))
	require.NoError(t, p.Add("second", &mockProvider{name: "second"}))

	chain, err := p.Chain("primary", []string{"second"}, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "primary+failover", chain.Name())

	resp, err := chain.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Message.Content)
}

func TestProviders_ChainRejectsBadFallbacks(t *testing.T) {
	p := NewProviders()
	require.NoError(t, p.Add("a", &mockProvider{name: "a"}))
	require.NoError(t, p.Add("b", &mockProvider{name: "b"}))

	_, err := p.Chain("a", []string{"a"}, newTestLogger())
	assert.Error(t, err)
	_, err = p.Chain("a", []string{"b", "b"}, newTestLogger())
	assert.Error(t, err)
	_, err = p.Chain("a", []string{"c"}, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}
