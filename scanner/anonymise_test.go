package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymise_Scan(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		text    string
		rewrite bool
		token   string
	}{
		{name: "email", text: "reach me at bob@corp.example", rewrite: true, token: "[EMAIL_"},
		{name: "cn mobile", text: "电话 13812345678 找我", rewrite: true, token: "[PHONE_"},
		{name: "ssn", text: "SSN is 123-45-6789", rewrite: true, token: "[SSN_"},
		{name: "ip address", text: "connect to 192.168.1.10 please", rewrite: true, token: "[IP_ADDRESS_"},
		{name: "credit card with separators", text: "card 4111-1111-1111-1111 thanks", rewrite: true, token: "[CREDIT_CARD_"},
		{name: "clean text", text: "no personal data here", rewrite: false},
		{name: "empty", text: "", rewrite: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewAnonymise(NewVault())
			res, err := s.Scan(ctx, tt.text)
			require.NoError(t, err)

			assert.True(t, res.Passed, "匿名化改写成功即通过")
			if tt.rewrite {
				assert.NotEqual(t, tt.text, res.Sanitized)
				assert.Contains(t, res.Sanitized, tt.token)
				assert.Greater(t, res.RiskScore, 0.0)
			} else {
				assert.Equal(t, tt.text, res.Sanitized)
				assert.Zero(t, res.RiskScore)
			}
		})
	}
}

func TestAnonymise_RoundTrip(t *testing.T) {
	vault := NewVault()
	s := NewAnonymise(vault)

	original := "email bob@corp.example, ip 10.0.0.1"
	res, err := s.Scan(context.Background(), original)
	require.NoError(t, err)
	require.NotEqual(t, original, res.Sanitized)

	assert.Equal(t, original, vault.Restore(res.Sanitized), "保管库应能完整还原")
}

func TestAnonymise_SameValueSameToken(t *testing.T) {
	s := NewAnonymise(NewVault())
	ctx := context.Background()

	first, err := s.Scan(ctx, "mail bob@corp.example")
	require.NoError(t, err)
	second, err := s.Scan(ctx, "again bob@corp.example")
	require.NoError(t, err)

	assert.Equal(t,
		first.Sanitized[len("mail "):],
		second.Sanitized[len("again "):],
		"同一值应复用同一令牌")
}
