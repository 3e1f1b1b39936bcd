package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModerator_Masks_Banned_Words(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"darn", "heck"}, '*')
	req.NoError(err)

	result := moderator.Censor("well darn, what the heck happened")

	req.Equal("well ****, what the **** happened", result.Content)
	req.ElementsMatch([]string{"darn", "heck"}, result.Censored)
}

func TestModerator_Matching_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"darn"}, '#')
	req.NoError(err)

	result := moderator.Censor("DaRn right")

	req.Equal("#### right", result.Content)
	req.Len(result.Censored, 1)
}

func TestModerator_Preserves_Rune_Length(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"zut"}, '*')
	req.NoError(err)

	original := "zut alors, café raté"
	result := moderator.Censor(original)

	req.Equal(len([]rune(original)), len([]rune(result.Content)))
}

func TestModerator_Clean_Content_Passes_Through(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"darn"}, '*')
	req.NoError(err)

	result := moderator.Censor("a perfectly polite sentence")

	req.Equal("a perfectly polite sentence", result.Content)
	req.Empty(result.Censored)
}

func TestModerator_Empty_Wordlist_Disables_Censoring(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator(nil, '*')
	req.NoError(err)
	req.Nil(moderator)

	// A nil moderator is usable and a no-op
	result := moderator.Censor("darn")
	req.Equal("darn", result.Content)
	req.Empty(result.Censored)
}

func TestModerator_Tags_Detected_Language(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"qqq"}, '*')
	req.NoError(err)

	result := moderator.Censor("this is a reasonably long English sentence about nothing in particular")

	req.Equal("en", result.Lang)
}
