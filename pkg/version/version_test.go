package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildInfo(settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
	return func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
}

func TestResolveCommit(t *testing.T) {
	tests := []struct {
		name     string
		stamped  string
		info     func() (*debug.BuildInfo, bool)
		expected string
	}{
		{
			name:     "stamped commit wins",
			stamped:  "0123456789abcdef",
			info:     buildInfo(debug.BuildSetting{Key: "vcs.revision", Value: "fedcba9876543210"}),
			expected: "01234567",
		},
		{
			name:     "short stamp kept",
			stamped:  "abc",
			expected: "abc",
		},
		{
			name:     "vcs revision",
			info:     buildInfo(debug.BuildSetting{Key: "vcs.revision", Value: "fedcba9876543210"}),
			expected: "fedcba98",
		},
		{
			name: "modified tree",
			info: buildInfo(
				debug.BuildSetting{Key: "vcs.revision", Value: "fedcba9876543210"},
				debug.BuildSetting{Key: "vcs.modified", Value: "true"},
			),
			expected: "fedcba98-dirty",
		},
		{
			name:     "no vcs info",
			info:     buildInfo(),
			expected: "dev",
		},
		{
			name:     "no build info",
			info:     func() (*debug.BuildInfo, bool) { return nil, false },
			expected: "dev",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolveCommit(tt.stamped, tt.info))
		})
	}
}

func TestFull(t *testing.T) {
	assert.True(t, strings.HasPrefix(Full(), "lexi/"))
	assert.Equal(t, AppName+"/"+GitCommit, Full())
}
