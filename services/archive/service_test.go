package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchiveKey(t *testing.T) {
	// Arrange
	tests := []struct {
		name       string
		orgName    string
		externalID string
		expected   string
	}{
		{
			name:       "plain identifiers",
			orgName:    "google.com",
			externalID: "12345678901234567890",
			expected:   "reports/google.com/12345678901234567890.xml",
		},
		{
			name:       "spaces and case folded",
			orgName:    "Outlook Aggregate Reports",
			externalID: "AB-123",
			expected:   "reports/outlook-aggregate-reports/ab-123.xml",
		},
		{
			name:       "path separators neutralized",
			orgName:    "evil/../org",
			externalID: "id/../../x",
			expected:   "reports/evil-..-org/id-..-..-x.xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			key := ArchiveKey(tt.orgName, tt.externalID)

			// Assert
			assert.Equal(t, tt.expected, key)
		})
	}
}
