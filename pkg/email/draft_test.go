package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDraft = Draft{
	Subject:   "MRI follow-up",
	Recipient: "Dr. Smith",
	Sender:    "Jane Doe",
	Body:      "Hello Dr. Smith,\nThe delivery moved to Friday.",
}

func TestDraftMessage(t *testing.T) {
	assert.Equal(t,
		"\nSubject: MRI follow-up\nTo: Dr. Smith\nFrom: Jane Doe\n\nHello Dr. Smith,\nThe delivery moved to Friday.",
		testDraft.Message())
}

func TestDraftPreview(t *testing.T) {
	now := time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)
	p := testDraft.Preview(now)

	assert.Contains(t, p, "**Date:** October 15th, 2026")
	assert.Contains(t, p, "**From:** Jane Doe")
	assert.Contains(t, p, "**To:** Dr. Smith")
	assert.Contains(t, p, "**Subject:** **MRI follow-up**")
	assert.Contains(t, p, "\nHello Dr. Smith,\n\nThe delivery moved to Friday.\n")
}

func TestRenderPreview(t *testing.T) {
	out, err := testDraft.RenderPreview(time.Now(), 60)
	require.NoError(t, err)
	assert.Contains(t, out, "Jane Doe")
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		day  int
		want string
	}{
		{1, "March 1st, 2024"},
		{2, "March 2nd, 2024"},
		{3, "March 3rd, 2024"},
		{4, "March 4th, 2024"},
		{11, "March 11th, 2024"},
		{12, "March 12th, 2024"},
		{13, "March 13th, 2024"},
		{21, "March 21st, 2024"},
		{22, "March 22nd, 2024"},
		{31, "March 31st, 2024"},
	}
	for _, tt := range tests {
		got := FormatDate(time.Date(2024, time.March, tt.day, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, tt.want, got)
	}
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Draft{}.IsEmpty())
	assert.True(t, Draft{Body: "  \n"}.IsEmpty())
	assert.False(t, testDraft.IsEmpty())
}
