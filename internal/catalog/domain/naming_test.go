package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSchemaName(t *testing.T) {
	cases := []struct {
		host string
		want string
		err  error
	}{
		{host: "acme.test", want: "acme_test"},
		{host: "Acme-Corp.Example.COM", want: "acme_corp_example_com"},
		{host: "9lives.test", want: "t_9lives_test"},
		{host: strings.Repeat("a", 70), want: strings.Repeat("a", 63)},
		{host: strings.Repeat("1", 70), want: "t_" + strings.Repeat("1", 61)},
		{host: "_bad.test", err: ErrInvalidSchemaName},
		{host: "", err: ErrInvalidSchemaName},
		{host: "acme!.test", err: ErrInvalidSchemaName},
	}

	for _, tc := range cases {
		t.Run(tc.host, func(t *testing.T) {
			got, err := DeriveSchemaName(tc.host)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.True(t, ValidSchemaName(got))
		})
	}
}

func TestSchemaNameWithSuffix(t *testing.T) {
	assert.Equal(t, "acme_test_2", SchemaNameWithSuffix("acme_test", 2))

	long := strings.Repeat("a", 63)
	got := SchemaNameWithSuffix(long, 12)
	assert.Len(t, got, 63)
	assert.True(t, strings.HasSuffix(got, "_12"))
	assert.True(t, ValidSchemaName(got))
}

func TestValidHost(t *testing.T) {
	assert.True(t, ValidHost("acme.test"))
	assert.True(t, ValidHost("a-b.c"))
	assert.False(t, ValidHost("Acme.test"))
	assert.False(t, ValidHost("acme..test"))
	assert.False(t, ValidHost("-acme.test"))
	assert.False(t, ValidHost("acme_test"))
	assert.False(t, ValidHost(""))
}

func TestHostWithoutPort(t *testing.T) {
	assert.Equal(t, "acme.test", HostWithoutPort("ACME.test:8080"))
	assert.Equal(t, "acme.test", HostWithoutPort("acme.test."))
	assert.Equal(t, "acme.test", HostWithoutPort("acme.test"))
}
