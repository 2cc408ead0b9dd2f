package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

var _ crawler.Hasher = Hasher{}

func TestHasherHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	for _, tt := range tests {
		got, err := New().Hash([]byte(tt.in))
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}
