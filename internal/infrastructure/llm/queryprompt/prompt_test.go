package queryprompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

func TestBuildIncludesDateAndQuery(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC)
	prompt := Build("emails from sarah", now)

	assert.Contains(t, prompt, "Today's date is 2026-02-10")
	assert.Contains(t, prompt, "2026-02-10T12:30:00Z")
	assert.Contains(t, prompt, `"emails from sarah"`)
}

func TestDecodeFullFilter(t *testing.T) {
	filter, err := Decode(`{"topic":"budget","timeframe":{"start":"2026-02-03T00:00:00Z","end":"2026-02-10"},"sender":"Sarah","bucket":"Important","hasAttachment":true}`)
	require.NoError(t, err)

	assert.Equal(t, "budget", filter.Topic)
	assert.Equal(t, "Sarah", filter.Sender)
	assert.Equal(t, "Important", filter.Bucket)
	require.NotNil(t, filter.HasAttachment)
	assert.True(t, *filter.HasAttachment)
	require.NotNil(t, filter.Timeframe)
	assert.True(t, filter.Timeframe.Start.Equal(time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)))
	assert.True(t, filter.Timeframe.End.Equal(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)))
}

func TestDecodeNullsAreAbsent(t *testing.T) {
	filter, err := Decode(`{"topic":null,"timeframe":null,"sender":"null","bucket":"  ","hasAttachment":null}`)
	require.NoError(t, err)
	assert.Equal(t, domain.ParsedFilter{}, filter)
}

func TestDecodeEmptyTimeframeIsAbsent(t *testing.T) {
	filter, err := Decode(`{"topic":"x","timeframe":{"start":null,"end":null}}`)
	require.NoError(t, err)
	assert.Nil(t, filter.Timeframe)
}

func TestDecodeRepairsSloppyJSON(t *testing.T) {
	filter, err := Decode("Here you go:\n```json\n{\"topic\": \"invoice\", \"sender\": \"acme\",}\n```")
	require.NoError(t, err)
	assert.Equal(t, "invoice", filter.Topic)
	assert.Equal(t, "acme", filter.Sender)
}

func TestDecodeMalformedTimestampIsParseFailure(t *testing.T) {
	_, err := Decode(`{"topic":null,"timeframe":{"start":"last tuesday","end":null}}`)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrQueryParse))
}

func TestDecodeEmptyAnswerIsParseFailure(t *testing.T) {
	_, err := Decode("   ")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrQueryParse))
	assert.True(t, strings.Contains(err.Error(), "empty"))
}
