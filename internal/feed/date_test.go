package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestDateFormatterEnglish(t *testing.T) {
	f, err := NewDateFormatter("en", time.UTC)
	require.NoError(t, err)

	cases := map[string]string{
		"2021-05-10":                "10 May 21",
		"2021-01-22 13:37:25":       "22 Jan 21",
		"2021-01-22T13:37:25":       "22 Jan 21",
		"2020-12-01T08:00:00Z":      "1 Dec 20",
		"2019-07-04T23:30:00.123Z":  "4 Jul 19",
		"2009-03-02 10:00":          "2 Mar 09",
		"2021-06-30T22:00:00-03:00": "1 Jul 21",
	}
	for raw, want := range cases {
		got, err := f.FormatISO(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestDateFormatterBrazilianPortuguese(t *testing.T) {
	f, err := NewDateFormatter("pt-BR", nil)
	require.NoError(t, err)
	assert.Equal(t, language.BrazilianPortuguese, f.Locale())

	got, err := f.FormatISO("2021-05-10")
	require.NoError(t, err)
	assert.Equal(t, "10 mai 21", got)

	got, err = f.FormatISO("2021-02-08 12:00:00")
	require.NoError(t, err)
	assert.Equal(t, "8 fev 21", got)
}

func TestDateFormatterRegionalEnglish(t *testing.T) {
	f, err := NewDateFormatter("en-GB", time.UTC)
	require.NoError(t, err)
	got, err := f.FormatISO("2021-10-31")
	require.NoError(t, err)
	assert.Equal(t, "31 Oct 21", got)
}

func TestDateFormatterLocation(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*3600)
	f, err := NewDateFormatter("pt-BR", saoPaulo)
	require.NoError(t, err)

	got, err := f.FormatISO("2021-05-10T01:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "9 mai 21", got)

	got, err = f.FormatISO("2021-05-10 01:00:00")
	require.NoError(t, err)
	assert.Equal(t, "10 mai 21", got)
}

func TestDateFormatterRejectsGarbage(t *testing.T) {
	f, err := NewDateFormatter("en", time.UTC)
	require.NoError(t, err)

	for _, raw := range []string{"", "yesterday", "10/05/2021", "2021-13-01", "2021-02-30"} {
		_, err := f.FormatISO(raw)
		assert.ErrorIs(t, err, ErrInvalidDate, raw)
	}
}

func TestNewDateFormatterRejectsBadLocale(t *testing.T) {
	_, err := NewDateFormatter("not a locale!", time.UTC)
	require.Error(t, err)
}
