package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurascale/neural-engine/pkg/discovery"
)

type fakeLSLResolver struct {
	streams []discovery.LSLStreamInfo
}

func (f *fakeLSLResolver) ResolveStreams(context.Context, time.Duration) ([]discovery.LSLStreamInfo, error) {
	return f.streams, nil
}

func TestLSLProber_FiltersByStreamType(t *testing.T) {
	resolver := &fakeLSLResolver{streams: []discovery.LSLStreamInfo{
		{Name: "eeg-cap", Type: "EEG", UID: "uid-1"},
		{Name: "audio-mon", Type: "Audio", UID: "uid-2"},
		{Name: "markers", Type: "Marker", SourceID: "src", HostName: "host"},
	}}
	p := &discovery.LSLProber{Resolver: resolver}

	devices, err := p.Probe(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	var types []string
	for _, d := range devices {
		types = append(types, d.DeviceType)
	}
	assert.Contains(t, types, "lsl:EEG")
	assert.Contains(t, types, "lsl:Marker")
}

func TestLSLProber_NoResolver(t *testing.T) {
	p := &discovery.LSLProber{}
	devices, err := p.Probe(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Empty(t, devices)
}
